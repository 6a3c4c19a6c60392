// Package web 内嵌了单页前端。
package web

import _ "embed"

// Index 是单页应用的 HTML。
//
//go:embed index.html
var Index []byte
