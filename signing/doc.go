// Package signing produces and verifies the signed access tokens issued by the
// authorization server.
//
// A Signer is configured once from a private JSON Web Key (RFC 7517) carrying
// "alg" (RS256 or EdDSA) and "kid". The public projection of the same key is
// published on the JWKS endpoint so resource servers can verify tokens.
//
//	signer, err := signing.NewSignerFromJSON(jwkJSON)
//	if err != nil {
//		return err
//	}
//	token, err := signer.Sign(ctx, signing.Claims{Issuer: issuer, Subject: sub, ...})
package signing
