// Package auth provides API key middleware for the HTTP surface.
//
// APIKey(mode, header, key) wraps an http.Handler. When mode != "apikey" or
// key == "" every request passes through, which suits local use with auth
// disabled. Otherwise the key is read from the named header, or from the
// api_key query parameter for browser websocket clients that cannot set
// headers, and a missing or wrong key gets 401.
package auth
