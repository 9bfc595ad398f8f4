package candidate

import "strings"

// gdprJurisdictions maps country names and ISO codes of jurisdictions with
// stricter data-retention obligations (EU/EEA, UK, Switzerland, Brazil).
var gdprJurisdictions = map[string]bool{
	"austria": true, "at": true,
	"belgium": true, "be": true,
	"bulgaria": true, "bg": true,
	"croatia": true, "hr": true,
	"cyprus": true, "cy": true,
	"czech republic": true, "czechia": true, "cz": true,
	"denmark": true, "dk": true,
	"estonia": true, "ee": true,
	"finland": true, "fi": true,
	"france": true, "fr": true,
	"germany": true, "de": true,
	"greece": true, "gr": true,
	"hungary": true, "hu": true,
	"iceland": true, "is": true,
	"ireland": true, "ie": true,
	"italy": true, "it": true,
	"latvia": true, "lv": true,
	"liechtenstein": true, "li": true,
	"lithuania": true, "lt": true,
	"luxembourg": true, "lu": true,
	"malta": true, "mt": true,
	"netherlands": true, "the netherlands": true, "nl": true,
	"norway": true, "no": true,
	"poland": true, "pl": true,
	"portugal": true, "pt": true,
	"romania": true, "ro": true,
	"slovakia": true, "sk": true,
	"slovenia": true, "si": true,
	"spain": true, "es": true,
	"sweden": true, "se": true,
	"switzerland": true, "ch": true,
	"united kingdom": true, "uk": true, "gb": true, "great britain": true,
	"brazil": true, "br": true,
}

// IsGDPRCountry reports whether the given country places the candidate under
// stricter data-handling obligations. Matching is case-insensitive and
// accepts both country names and ISO codes.
func IsGDPRCountry(country string) bool {
	return gdprJurisdictions[strings.ToLower(strings.TrimSpace(country))]
}
