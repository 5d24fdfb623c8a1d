package domain

// Contact is one entry of the contact directory.
type Contact struct {
	Name     string   `json:"name" yaml:"name"`
	PhotoRef string   `json:"photo,omitempty" yaml:"photo,omitempty"`
	Numbers  []string `json:"numbers" yaml:"numbers"`
}
