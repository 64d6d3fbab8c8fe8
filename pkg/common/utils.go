// Copyright (c) 2025 AndeLabs. All Rights Reserved.

package common

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"
)

func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}

	return fallback
}

// GenerateRandomInt generate a random int that is not determined
func GenerateRandomInt() int {
	source := rand.NewSource(time.Now().UnixNano())
	random := rand.New(source)

	return random.Intn(10000)
}

// MakeClickEventID creates a click-event identifier at the submission
// boundary so callers can de-duplicate retries.
// example: 0x12ab_1234
func MakeClickEventID(identifiers ...string) string {
	strInt := strconv.Itoa(GenerateRandomInt())
	var id string
	for _, i := range identifiers {
		id = fmt.Sprintf(id + i + "_")
	}

	return fmt.Sprintf(id + strInt)
}
