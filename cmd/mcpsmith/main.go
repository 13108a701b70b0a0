// Copyright 2026 The mcpsmith Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import "github.com/forgelabs/mcpsmith/internal/cli"

func main() {
	cli.Execute()
}
