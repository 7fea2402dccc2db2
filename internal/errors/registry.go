package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Severity Severity
	Message  string
	Detail   string
	DocURL   string
}

const docBase = "https://github.com/vango-dev/propgen/blob/main/docs/errors.md#"

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Property Diagnostics (P001-P099)
	// ============================================

	"P001": {
		Category: CategoryMarker,
		Message:  "Parameterized marker without default",
		Detail:   "The property carries a parameterized marker but no default= argument. The property is not generated because guessing a default could hide a mistake.",
		DocURL:   docBase + "p001",
	},
	"P002": {
		Category: CategoryMarker,
		Message:  "Invalid default expression",
		Detail:   "The default= argument of the marker is not a valid Go expression. The property is not generated.",
		DocURL:   docBase + "p002",
	},
	"P003": {
		Category: CategoryMarker,
		Severity: SeverityWarning,
		Message:  "Conflicting property markers",
		Detail:   "The property carries more than one marker. The first marker in merge order is used and the others are ignored.",
		DocURL:   docBase + "p003",
	},
	"P004": {
		Category: CategoryDeclaration,
		Message:  "Unsupported declaration",
		Detail:   "Only settable instance properties can carry a property marker. The declaration is not generated.",
		DocURL:   docBase + "p004",
	},
	"P005": {
		Category: CategoryMarker,
		Message:  "Marker type does not match property type",
		Detail:   "The type argument of the parameterized marker must be the declared type of the property.",
		DocURL:   docBase + "p005",
	},
	"P006": {
		Category: CategoryDeclaration,
		Message:  "Unsupported owning type",
		Detail:   "Accessors cannot be generated for this type. No artifact is produced for it.",
		DocURL:   docBase + "p006",
	},
	"P007": {
		Category: CategoryMarker,
		Severity: SeverityWarning,
		Message:  "Unknown propgen directive",
		Detail:   "The comment uses the propgen: prefix but is not a known directive. It is ignored.",
		DocURL:   docBase + "p007",
	},
	"P008": {
		Category: CategoryDeclaration,
		Message:  "Conflicting generated names",
		Detail:   "Two properties of the same package would declare the same key variable. The later property is not generated.",
		DocURL:   docBase + "p008",
	},
	"P009": {
		Category: CategoryMarker,
		Message:  "Property could not be emitted",
		Detail:   "The generated source for the property does not compile as Go. The property is not generated; the rest of its type is.",
		DocURL:   docBase + "p009",
	},

	// ============================================
	// Configuration Errors (E100-E119)
	// ============================================

	"E100": {
		Category: CategoryConfig,
		Message:  "Invalid propgen.yaml",
		Detail:   "The propgen.yaml configuration file is malformed.",
		DocURL:   docBase + "e100",
	},
	"E101": {
		Category: CategoryConfig,
		Message:  "Missing required configuration",
		Detail:   "A required configuration value is not set.",
		DocURL:   docBase + "e101",
	},
	"E102": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		Detail:   "A configuration value is out of range or has the wrong form.",
		DocURL:   docBase + "e102",
	},
	"E103": {
		Category: CategoryConfig,
		Message:  "Configuration not found",
		Detail:   "No propgen.yaml was found in the directory or any parent directory.",
		DocURL:   docBase + "e103",
	},

	// ============================================
	// Snapshot Errors (E200-E219)
	// ============================================

	"E200": {
		Category: CategorySnapshot,
		Message:  "Invalid declaration snapshot",
		Detail:   "The declaration snapshot could not be decoded.",
		DocURL:   docBase + "e200",
	},
	"E201": {
		Category: CategorySnapshot,
		Message:  "Declaration snapshot failed schema validation",
		Detail:   "The declaration snapshot does not conform to the snapshot schema.",
		DocURL:   docBase + "e201",
	},
	"E202": {
		Category: CategorySnapshot,
		Message:  "Duplicate declaration",
		Detail:   "Two declarations in the snapshot have the same identity.",
		DocURL:   docBase + "e202",
	},

	// ============================================
	// Load Errors (E300-E319)
	// ============================================

	"E300": {
		Category: CategoryLoad,
		Message:  "Failed to load packages",
		Detail:   "The Go packages could not be loaded.",
		DocURL:   docBase + "e300",
	},
	"E301": {
		Category: CategoryLoad,
		Message:  "Package has errors",
		Detail:   "A loaded package has parse or type errors. Declarations in it may be incomplete.",
		DocURL:   docBase + "e301",
	},
	"E302": {
		Category: CategoryLoad,
		Message:  "Remote cache unavailable",
		Detail:   "The remote artifact cache could not be reached. Artifacts are generated locally.",
		DocURL:   docBase + "e302",
	},

	// ============================================
	// CLI Errors (E400-E419)
	// ============================================

	"E400": {
		Category: CategoryCLI,
		Message:  "Generated files are out of date",
		Detail:   "At least one generated artifact differs from what propgen would produce.",
		DocURL:   docBase + "e400",
	},
	"E401": {
		Category: CategoryCLI,
		Message:  "Generation reported errors",
		Detail:   "At least one property diagnostic with error severity was reported.",
		DocURL:   docBase + "e401",
	},
	"E402": {
		Category: CategoryCLI,
		Message:  "Failed to write artifact",
		Detail:   "A generated artifact could not be written to disk.",
		DocURL:   docBase + "e402",
	},
	"E403": {
		Category: CategoryCLI,
		Message:  "Invalid flag value",
		Detail:   "A command-line flag has an unsupported value.",
		DocURL:   docBase + "e403",
	},
	"E404": {
		Category: CategoryCLI,
		Message:  "Artifact path collision",
		Detail:   "Two generated artifacts resolve to the same file.",
		DocURL:   docBase + "e404",
	},
}

// GetAllCodes returns all registered error codes in sorted order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a custom error template.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
