// Copyright 2025 The Yuanlin Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/suzhouyl/yuanlin/cmd"
)

var Version = "development"

func main() {
	cmd.Execute(Version)
}
