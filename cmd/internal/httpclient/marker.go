package httpclient

import "encoding/json"

// RefreshMarker is the sentinel error code the API places in a 401 body to
// signal "refresh and retry". 401s without it are terminal (bad credentials).
const RefreshMarker = "REFRESH"

// errorEnvelope is the API's error body shape.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func hasRefreshMarker(body []byte) bool {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false
	}
	return env.Error.Code == RefreshMarker
}
