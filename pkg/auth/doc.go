// Package auth describes the authenticated principal attached to each request and
// verifies the bearer tokens issued by the identity service.
//
// Token issuance, refresh and password login belong to the identity service. This
// package only answers two questions for the authorization layer: is the caller
// authenticated, and what is their numeric user id.
//
//	verifier := auth.NewTokenVerifier(secret, "shopfront-identity")
//	principal, err := verifier.Verify(token)
//	if err != nil {
//		principal = auth.Anonymous
//	}
//	ctx = auth.WithPrincipal(ctx, principal)
//
// The user id is read from the "id" claim and may be a JSON number or a decimal string.
package auth
