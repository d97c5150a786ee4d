package analysis

import (
	"regexp"
	"strings"

	"github.com/medreport-explainer/internal/domain"
)

// Term categories used by the local dictionary.
const (
	CategoryLab     = "lab"
	CategoryImaging = "imaging"
	CategoryGeneral = "general"
)

type dictionaryEntry struct {
	key        string
	definition domain.TermDefinition
	pattern    *regexp.Regexp
}

func entry(key, term, definition, category string) dictionaryEntry {
	return dictionaryEntry{
		key:        key,
		definition: domain.TermDefinition{Term: term, Definition: definition, Category: category},
		pattern:    regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(key) + `\b`),
	}
}

// dictionary is matched in declaration order.
var dictionary = []dictionaryEntry{
	entry("wbc", "WBC", "White Blood Count. Measures cells that fight infection.", CategoryLab),
	entry("rbc", "RBC", "Red Blood Count. Measures cells that carry oxygen.", CategoryLab),
	entry("hgb", "Hemoglobin", "Protein in red blood cells that carries oxygen.", CategoryLab),
	entry("hct", "Hematocrit", "Percentage of blood volume that is red blood cells.", CategoryLab),
	entry("plt", "Platelets", "Cells that help blood clot.", CategoryLab),
	entry("alt", "ALT", "Alanine Aminotransferase. An enzyme found in the liver.", CategoryLab),
	entry("ast", "AST", "Aspartate Aminotransferase. A liver enzyme.", CategoryLab),
	entry("creatinine", "Creatinine", "Waste product filtered by the kidneys.", CategoryLab),
	entry("bun", "BUN", "Blood Urea Nitrogen. A measure of kidney function.", CategoryLab),
	entry("glucose", "Glucose", "Blood sugar level.", CategoryLab),
	entry("lipid", "Lipid", "Fats in the blood, like cholesterol.", CategoryLab),
	entry("hdl", "HDL", `High-Density Lipoprotein. Often called "good" cholesterol.`, CategoryLab),
	entry("ldl", "LDL", `Low-Density Lipoprotein. Often called "bad" cholesterol.`, CategoryLab),
	entry("thyroid", "Thyroid", "Gland that regulates metabolism.", CategoryGeneral),
	entry("tsh", "TSH", "Thyroid Stimulating Hormone.", CategoryLab),
	entry("mri", "MRI", "Magnetic Resonance Imaging. Uses magnets to see inside the body.", CategoryImaging),
	entry("ct", "CT Scan", "Computed Tomography. Uses X-rays to create detailed images.", CategoryImaging),
	entry("contrast", "Contrast", "Dye used to make structures deeper in the body show up clearer.", CategoryImaging),
	entry("benign", "Benign", "Not cancerous.", CategoryGeneral),
	entry("malignant", "Malignant", "Cancerous.", CategoryGeneral),
	entry("acute", "Acute", "Sudden onset, usually of short duration.", CategoryGeneral),
	entry("chronic", "Chronic", "Long-developing, persistent condition.", CategoryGeneral),
	entry("fracture", "Fracture", "Broken bone.", CategoryImaging),
	entry("lesion", "Lesion", "Area of abnormal tissue change.", CategoryGeneral),
	entry("unremarkable", "Unremarkable", "Normal. Nothing abnormal found.", CategoryGeneral),
	entry("intact", "Intact", "Normal, unbroken, functioning.", CategoryGeneral),
}

// FindTerms returns every dictionary entry whose key appears in text as a whole word,
// case-insensitively. Results follow dictionary order, not position in text.
func FindTerms(text string) []domain.TermDefinition {
	found := []domain.TermDefinition{}
	if text == "" {
		return found
	}
	for _, e := range dictionary {
		if e.pattern.MatchString(text) {
			found = append(found, e.definition)
		}
	}
	return found
}

// LookupTerm returns the dictionary definition for term, matched against keys and display
// names case-insensitively.
func LookupTerm(term string) (domain.TermDefinition, bool) {
	for _, e := range dictionary {
		if equalFoldTrim(term, e.key) || equalFoldTrim(term, e.definition.Term) {
			return e.definition, true
		}
	}
	return domain.TermDefinition{}, false
}

func equalFoldTrim(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
