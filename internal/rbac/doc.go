// Package rbac is the pure decision core of the admin IAM engine.
//
// It owns the closed resource/action vocabulary, permission matrices, the
// numeric level hierarchy and the permission evaluator. Nothing here touches
// storage; callers build an AuthContext snapshot per request and pass it in:
//
//	ac := rbac.NewAuthContext(subject, roleSnapshot)
//	if !evaluator.Can(ac, rbac.ResourcePayoutManagement, rbac.ActionApprove) {
//		// hide the control
//	}
//
// Every ambiguous or missing input resolves to deny.
package rbac
