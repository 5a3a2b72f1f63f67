package api

// EmptyReply is the acknowledgement returned by successful lifecycle calls.
type EmptyReply struct{}

// StringRequest carries a single path for the relocation calls. Value is the
// path that was in effect before the caller stored the new one.
type StringRequest struct {
	Value string `json:"value"`
}

// StatusResponse reports what the daemon tracks for one vault.
type StatusResponse struct {
	ID         int64  `json:"id"`
	Unlocked   bool   `json:"unlocked"`
	MountPoint string `json:"mount_point,omitempty"`
}

type HelloRequest struct {
	Name string `json:"name"`
}

type HelloResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
