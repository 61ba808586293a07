/*
Copyright 2026 The Lattice Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package compiler

import (
	"fmt"
	"strings"
)

// sdlWriter accumulates the generated schema text.
type sdlWriter struct {
	b strings.Builder
}

func (w *sdlWriter) raw(s string) {
	w.b.WriteString(s)
}

// open starts a type/input/enum block.
func (w *sdlWriter) open(format string, args ...any) {
	fmt.Fprintf(&w.b, format+" {\n", args...)
}

// fieldf writes one indented member line.
func (w *sdlWriter) fieldf(format string, args ...any) {
	w.b.WriteString("  ")
	fmt.Fprintf(&w.b, format+"\n", args...)
}

func (w *sdlWriter) close() {
	w.b.WriteString("}\n\n")
}

func (w *sdlWriter) String() string {
	return w.b.String()
}
