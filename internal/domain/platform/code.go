package platform

// Code identifies a connected external marketplace
type Code string

const (
	// CodeEbay represents the eBay marketplace
	CodeEbay Code = "EBAY"
	// CodeWhatnot represents the Whatnot marketplace
	CodeWhatnot Code = "WHATNOT"
)

// IsValid returns true if the platform code is valid
func (c Code) IsValid() bool {
	switch c {
	case CodeEbay, CodeWhatnot:
		return true
	}
	return false
}

// String returns the string representation of Code
func (c Code) String() string {
	return string(c)
}

// AllCodes returns every supported marketplace code
func AllCodes() []Code {
	return []Code{CodeEbay, CodeWhatnot}
}
