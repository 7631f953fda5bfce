package web

import (
	"embed"
)

// staticFiles holds the control page served at / and /static/.
//
//go:embed static/*
var staticFiles embed.FS
