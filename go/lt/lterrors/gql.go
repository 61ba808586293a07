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

package lterrors

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// ToGraphQL converts err into a GraphQL error attached to path. The
// extensions.code field carries the backend state when one is set and the
// stage code otherwise.
func ToGraphQL(err error, path ast.Path) *gqlerror.Error {
	if err == nil {
		return nil
	}
	if gqlErr, ok := err.(*gqlerror.Error); ok {
		if gqlErr.Path == nil {
			gqlErr.Path = path
		}
		return gqlErr
	}

	code := ErrCode(err).String()
	if state := ErrState(err); state != Undefined {
		code = state.String()
	}
	return &gqlerror.Error{
		Message: err.Error(),
		Path:    path,
		Extensions: map[string]any{
			"code": code,
		},
	}
}

// PathName builds an error path from field names.
func PathName(names ...string) ast.Path {
	path := make(ast.Path, 0, len(names))
	for _, name := range names {
		path = append(path, ast.PathName(name))
	}
	return path
}
