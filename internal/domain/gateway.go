package domain

// GatewayRequest is built per event and discarded after the HTTP round trip.
type GatewayRequest struct {
	Source     string
	Subject    string
	Body       string
	URL        string
	Credential string // sent verbatim as the Authorization header
}
