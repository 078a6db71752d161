// Package common contains shared constants and sentinel errors used across
// Pawkit sync components.
package common

// AuthorizationHeaderName is the HTTP header used to carry the bearer token
// on outbound requests.
const AuthorizationHeaderName = "Authorization"

// DeviceIDHeaderName and DeviceActiveHeaderName carry the pushing device's
// identity and activity snapshot so the server and the conflict resolver can
// see which device owns recent intent.
const (
	DeviceIDHeaderName     = "X-Pawkit-Device-Id"
	DeviceActiveHeaderName = "X-Pawkit-Device-Active"
)
