package utils

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"reflect"
	"time"

	"github.com/google/go-querystring/query"
)

// RandInt returns a random int in [min, max]. Swapped bounds are tolerated.
func RandInt(min, max int) int {
	if max < min {
		min, max = max, min
	}
	if min == max {
		return min
	}
	return min + rand.Intn(max-min+1)
}

// RandFloat returns a random float64 in [min, max).
func RandFloat(min, max float64) float64 {
	if max < min {
		min, max = max, min
	}
	if min == max {
		return min
	}
	return min + rand.Float64()*(max-min)
}

// RandDuration returns a random duration between min and max seconds.
func RandDuration(minSec, maxSec float64) time.Duration {
	return time.Duration(RandFloat(minSec, maxSec) * float64(time.Second))
}

func FormatObject(obj interface{}) (string, error) {
	loggableMap := make(map[string]interface{})

	v := reflect.ValueOf(obj)

	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {

		jsonOutput, err := json.MarshalIndent(obj, "", "  ")
		if err != nil {
			return "", err
		}
		return string(jsonOutput), nil
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Func {

			loggableMap[fieldType.Name] = "<function>"
			continue
		}

		if field.CanInterface() {
			loggableMap[fieldType.Name] = field.Interface()
		}
	}

	jsonOutput, err := json.MarshalIndent(loggableMap, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonOutput), nil
}

func EncodeURLParams(params interface{}) (string, error) {
	v, err := query.Values(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode url param: %w", err)
	}
	return v.Encode(), nil
}

func BeautifyJSON(data []byte) string {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return string(data)
	}
	pretty, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return string(data)
	}
	return string(pretty)
}
