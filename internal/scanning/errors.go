package scanning

import "fmt"

// DecodeError indicates the uploaded bytes could not be decoded as a
// supported image or PDF. The attempt fails before any network call.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// NetworkError indicates a transport failure reaching the extraction
// backend.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("calling extraction backend: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// UpstreamError indicates the model backend reported a structured
// failure (bad key, quota, unknown model). Details optionally carries
// debugging help such as the model names available to the key.
type UpstreamError struct {
	Message string
	Details string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("extraction backend error: %s", e.Message)
}

// ProtocolError indicates the backend answered but the response body did
// not have the expected shape.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("unexpected extraction response: %s", e.Reason)
}
