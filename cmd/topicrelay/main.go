// topicrelay - ROS topic relay with frame id rewriting
//
// topicrelay forwards ROS topics between hosts and can prefix topic names
// and coordinate frame ids on the receiving side.
//
// Copyright (c) 2025 John Mylchreest
// Licensed under the MIT License
package main

import (
	"github.com/jmylchreest/topicrelay/internal/cli"
)

func main() {
	cli.Execute()
}
