// Package intake accepts one scan from the operator and reports its fate.
//
// A scan is normalized and attempted at once. If the attempt cannot reach the
// server the scan is appended to the pending queue and reported as queued;
// the sync coordinator delivers it later. Rejections are reported to the
// operator and never queued.
package intake
