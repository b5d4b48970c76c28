package qa

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"golang.org/x/net/html"

	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
)

var page = template.Must(template.New("qa").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
{{.Body}}
</body>
</html>
`))

// ToHTML renders the Markdown body into a standalone page.
func ToHTML(title string, body []byte) ([]byte, error) {
	var rendered bytes.Buffer
	if err := goldmark.Convert(body, &rendered); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "failed to render QA markdown").Build()
	}
	var out bytes.Buffer
	err := page.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{title, template.HTML(rendered.String())}) // #nosec G203 -- goldmark output
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "failed to render QA page").Build()
	}
	return out.Bytes(), nil
}

// ValidateHTML returns the image sources of page that do not resolve to a
// file below baseDir. Remote images are not checked.
func ValidateHTML(page []byte, baseDir string) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryValidation, "failed to parse QA page").Build()
	}
	var missing []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "img" {
			if src := attr(n, "src"); src != "" && !resolves(baseDir, src) {
				missing = append(missing, src)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return missing, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func resolves(baseDir, src string) bool {
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	if u.Scheme != "" {
		return true
	}
	path, err := url.PathUnescape(u.Path)
	if err != nil {
		return false
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, filepath.FromSlash(path))
	}
	_, err = os.Stat(path)
	return err == nil
}

func brokenImagesError(missing []string) error {
	return ferrors.ValidationError(fmt.Sprintf("QA report references %d missing image(s)", len(missing))).
		WithContext("images", strings.Join(missing, ", ")).
		Warning().Build()
}
