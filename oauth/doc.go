// Package oauth manages the SmartThings OAuth2 credential: the authorization
// code grant with optional PKCE, persistence through a tokenstore.Store and
// transparent refresh shortly before expiry.
package oauth
