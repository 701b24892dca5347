package types

// Traits is the closed set of recognised test flags. Anything user-defined
// goes into Tags instead.
type Traits struct {
	Broken   bool
	Bug      bool
	Todo     bool
	Fork     bool
	Title    string
	TestID   string
	Platform string
	Tags     map[string]string
}
