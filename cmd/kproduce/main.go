// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// kproduce sends messages to Kafka and prints one delivery report per
// message.
//
//	kproduce produce --brokers localhost:9092 --topic events --value hello --count 3
package main

import (
	"os"

	"github.com/xmidt-org/kproducer/cmd/kproduce/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
