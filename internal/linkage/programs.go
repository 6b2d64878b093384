package linkage

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Canonical HUD Picture of Subsidized Households program labels.
const (
	ProgramAllHUD        = "Summary of All HUD Programs"
	ProgramVouchers      = "Housing Choice Vouchers"
	ProgramPublicHousing = "Public Housing"
	ProgramLIHTC         = "LIHTC"
	ProgramSection236    = "Section 236"
	ProgramSection8NCSR  = "Section 8 NC/SR"
	ProgramModRehab      = "Mod Rehab"
	ProgramMultiFamily   = "Multi-Family Other"
	ProgramPRAC811       = "811/PRAC"
	ProgramPRAC202       = "202/PRAC"
)

// rawLabels maps the labels found in HUD files to canonical labels.
var rawLabels = map[string]string{
	"All HUD":  ProgramAllHUD,
	"MF/Other": ProgramMultiFamily,
	"MR":       ProgramModRehab,
	"PH":       ProgramPublicHousing,
	"S236":     ProgramSection236,
	"S8":       ProgramSection8NCSR,
	"VO":       ProgramVouchers,
}

// shortcuts are the short names accepted in configuration.
var shortcuts = map[string]string{
	"HCV":      ProgramVouchers,
	"PH":       ProgramPublicHousing,
	"LIHTC":    ProgramLIHTC,
	"ALL":      ProgramAllHUD,
	"S8":       ProgramVouchers,
	"VOUCHERS": ProgramVouchers,
	"S236":     ProgramSection236,
	"S8NC":     ProgramSection8NCSR,
	"S8SR":     ProgramSection8NCSR,
	"811":      ProgramPRAC811,
	"202":      ProgramPRAC202,
	"PRAC":     ProgramPRAC811,
	"MF":       ProgramMultiFamily,
	"MODR":     ProgramModRehab,
}

var canonical = map[string]bool{
	ProgramAllHUD: true, ProgramVouchers: true, ProgramPublicHousing: true, ProgramLIHTC: true,
	ProgramSection236: true, ProgramSection8NCSR: true, ProgramModRehab: true,
	ProgramMultiFamily: true, ProgramPRAC811: true, ProgramPRAC202: true,
}

// CanonicalLabel maps a label read from a HUD file to its canonical form.
// Unknown labels are returned trimmed.
func CanonicalLabel(raw string) string {
	raw = strings.TrimSpace(raw)
	if c, ok := rawLabels[raw]; ok {
		return c
	}
	return raw
}

// ExpandLabels resolves configured program labels, shortcuts included, into
// distinct canonical labels in the order given.
func ExpandLabels(labels []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		full, ok := shortcuts[strings.ToUpper(l)]
		if !ok {
			full = CanonicalLabel(l)
		}
		if !canonical[full] {
			return nil, fmt.Errorf("unknown program label %q (known: %s)", l, strings.Join(KnownLabels(), ", "))
		}
		if !seen[full] {
			seen[full] = true
			out = append(out, full)
		}
	}
	return out, nil
}

// KnownLabels lists the canonical labels alphabetically.
func KnownLabels() []string {
	out := make([]string, 0, len(canonical))
	for l := range canonical {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

var nonWord = regexp.MustCompile(`\W+`)

// SafeLabel renders a label for file and column names: "Section 8 NC/SR" becomes "section_8_nc_sr".
func SafeLabel(label string) string {
	return nonWord.ReplaceAllString(strings.ToLower(strings.TrimSpace(label)), "_")
}
