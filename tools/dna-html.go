/* Copyright 2024 the holochain-go authors
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package tools has utilities for working with DNA packages that the
// engine itself doesn't need.
package tools

import (
	"fmt"
	"html"
	"io"

	"github.com/dynaput247/holochain/dna"

	md "github.com/russross/blackfriday/v2"
)

// RenderDNAHTML writes an HTML fragment documenting the package:
// descriptions as rendered Markdown, zome code verbatim.
func RenderDNAHTML(d *dna.DNA, out io.Writer) error {
	f := func(format string, args ...interface{}) {
		fmt.Fprintf(out, format+"\n", args...)
	}

	if d.Description != "" {
		f(`<div class="dnaDoc doc">%s</div>`, md.Run([]byte(d.Description)))
	}
	f(`<div class="dnaHash"><code>%s</code></div>`, d.Hash())

	f(`<div class="zomes"><table>`)
	for _, z := range d.Zomes {
		f(`<tr class="zome"><td><span id="%s" class="zomeName">%s</span></td><td>`, z.Name, z.Name)

		if z.Description != "" {
			f(`<div class="zomeDoc doc">%s</div>`, md.Run([]byte(z.Description)))
		}

		if len(z.Functions) > 0 {
			f(`<div class="functions"><table>`)
			for _, fn := range z.Functions {
				role := ""
				if fn.Validating {
					role = `<span class="validating">validating</span>`
				}
				f(`<tr><td><code>%s</code></td><td>%s</td></tr>`, fn.Name, role)
			}
			f(`</table></div>`)
		}

		f(`<div class="code"><pre>%s</pre></div>`, html.EscapeString(z.Code))

		f(`</td></tr>`)
	}
	f(`</table></div>`)

	return nil
}

// RenderDNAPage writes a complete HTML page for the package.
func RenderDNAPage(d *dna.DNA, out io.Writer, cssFiles []string) error {
	if cssFiles == nil {
		cssFiles = []string{"/static/dna-html.css"}
	}

	fmt.Fprintf(out, `<!DOCTYPE html>
<meta charset="utf-8">
<html>
  <head>
  <title>%s</title>
`, d.Name)

	for _, cssFile := range cssFiles {
		fmt.Fprintf(out, "  <link href=\"%s\" rel=\"stylesheet\">\n", cssFile)
	}

	fmt.Fprintf(out, `
  </head>
  <body>
    <h1>%s</h1>
`, d.Name)

	if err := RenderDNAHTML(d, out); err != nil {
		return err
	}

	fmt.Fprintf(out, `
  </body>
</html>
`)

	return nil
}

// ReadAndRenderDNAPage loads a DNA file and renders its page.
func ReadAndRenderDNAPage(filename string, cssFiles []string, out io.Writer) error {
	d, err := dna.Load(filename)
	if err != nil {
		return err
	}
	return RenderDNAPage(d, out, cssFiles)
}
