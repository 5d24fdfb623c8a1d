package ingest

// Settings is the configuration snapshot one event is processed with.
// Callers must not mutate it after handing it to Process.
type Settings struct {
	GatewayURL          string
	GatewayPassword     string
	SendToGateway       bool
	DisableLogging      bool
	BlockUnknownNumbers bool
	BlockedKeywords     []string
	ArchiveAvailable    bool
}

// Clone returns a copy that shares no memory with s.
func (s Settings) Clone() Settings {
	c := s
	if s.BlockedKeywords != nil {
		c.BlockedKeywords = append([]string(nil), s.BlockedKeywords...)
	}
	return c
}
