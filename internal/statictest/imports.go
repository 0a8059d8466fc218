package statictest

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/forgeworks/appforge/internal/domain"
)

//go:embed known_names.yaml
var knownNamesYAML []byte

// KnownName pairs a commonly unimported identifier with the import line
// that provides it.
type KnownName struct {
	Name   string `yaml:"name"`
	Import string `yaml:"import"`

	useRe *regexp.Regexp
}

type catalogFile struct {
	Names []KnownName `yaml:"names"`
}

func loadCatalog() ([]KnownName, error) {
	var file catalogFile
	if err := yaml.Unmarshal(knownNamesYAML, &file); err != nil {
		return nil, fmt.Errorf("parsing known-name catalogue: %w", err)
	}
	for i := range file.Names {
		file.Names[i].useRe = regexp.MustCompile(`\b` + regexp.QuoteMeta(file.Names[i].Name) + `\b`)
	}
	return file.Names, nil
}

// checkImports cross-references the known-name catalogue against each
// file's imports. A name used without a matching import yields one patch
// request naming the missing import; findings for one file are merged by
// patch application.
func (r *Runner) checkImports(b domain.CodeBundle) []domain.FilePatchRequest {
	var patches []domain.FilePatchRequest
	for _, path := range b.Paths() {
		if !strings.HasSuffix(path, ".py") {
			continue
		}
		src := b[path]
		imports, body := splitImports(src)
		for _, kn := range r.catalog {
			if !kn.useRe.MatchString(body) {
				continue
			}
			if importsProvide(imports, kn.Name) {
				continue
			}
			patches = append(patches, domain.FilePatchRequest{
				Path:         path,
				Reason:       fmt.Sprintf("name %q is used but never imported", kn.Name),
				Instructions: fmt.Sprintf("Add the missing import: %s", kn.Import),
			})
		}
	}
	return patches
}

// splitImports separates a file's import lines from the rest of its code,
// dropping comments from the body so names in comments don't count as use.
func splitImports(src string) (imports []string, body string) {
	var bodyLines []string
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "from ") {
			imports = append(imports, trimmed)
			continue
		}
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		bodyLines = append(bodyLines, line)
	}
	return imports, strings.Join(bodyLines, "\n")
}

func importsProvide(imports []string, name string) bool {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
	for _, imp := range imports {
		if re.MatchString(imp) {
			return true
		}
	}
	return false
}
