// Copyright 2025 The Weft Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sandbox

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// callFunction dispatches a whitelisted global function.
func callFunction(name string, args []any) (any, error) {
	switch name {
	case "len", "size":
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		return length(args[0])

	case "str", "string":
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		return stringify(args[0]), nil

	case "int":
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		return toInt(args[0])

	case "float", "double":
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		return toFloat(args[0])

	case "bool":
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		return truthy(args[0]), nil

	case "abs":
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		i, f, isInt, err := toNumber(args[0])
		if err != nil {
			return nil, fmt.Errorf("abs: %w", err)
		}
		if isInt {
			if i < 0 {
				return -i, nil
			}
			return i, nil
		}
		return math.Abs(f), nil

	case "round":
		return roundFunc(args)

	case "min", "max":
		return minMax(name, args)

	case "sum":
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		return sumFunc(args[0])

	case "sorted":
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		return sortedFunc(args[0])

	case "all":
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		list, err := asList(name, args[0])
		if err != nil {
			return nil, err
		}
		for _, elem := range list {
			if !truthy(elem) {
				return false, nil
			}
		}
		return true, nil

	case "any":
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		list, err := asList(name, args[0])
		if err != nil {
			return nil, err
		}
		for _, elem := range list {
			if truthy(elem) {
				return true, nil
			}
		}
		return false, nil

	case "list", "tuple":
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		return toList(args[0])
	}

	return nil, fmt.Errorf("unknown function %q", name)
}

// callMethod dispatches a whitelisted member function on its receiver.
func callMethod(receiver any, name string, args []any) (any, error) {
	switch r := receiver.(type) {
	case map[string]any:
		return mapMethod(r, name, args)
	case string:
		return stringMethod(r, name, args)
	case []any:
		return listMethod(r, name, args)
	}
	return nil, fmt.Errorf("method %q not supported on %s", name, typeName(receiver))
}

func mapMethod(m map[string]any, name string, args []any) (any, error) {
	switch name {
	case "get":
		if len(args) < 1 || len(args) > 2 {
			return nil, fmt.Errorf("get expects 1 or 2 arguments, got %d", len(args))
		}
		key, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("get: key must be a string, got %s", typeName(args[0]))
		}
		if value, present := m[key]; present {
			return value, nil
		}
		if len(args) == 2 {
			return args[1], nil
		}
		return nil, nil

	case "keys":
		if err := arity(name, args, 0); err != nil {
			return nil, err
		}
		keys := sortedKeys(m)
		result := make([]any, len(keys))
		for i, k := range keys {
			result[i] = k
		}
		return result, nil

	case "values":
		if err := arity(name, args, 0); err != nil {
			return nil, err
		}
		keys := sortedKeys(m)
		result := make([]any, len(keys))
		for i, k := range keys {
			result[i] = m[k]
		}
		return result, nil

	case "contains":
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		key, ok := args[0].(string)
		if !ok {
			return false, nil
		}
		_, present := m[key]
		return present, nil

	case "size":
		if err := arity(name, args, 0); err != nil {
			return nil, err
		}
		return int64(len(m)), nil
	}
	return nil, fmt.Errorf("method %q not supported on map", name)
}

func stringMethod(s, name string, args []any) (any, error) {
	switch name {
	case "contains":
		sub, err := stringArg(name, args)
		if err != nil {
			return nil, err
		}
		return strings.Contains(s, sub), nil

	case "startsWith", "startswith":
		prefix, err := stringArg(name, args)
		if err != nil {
			return nil, err
		}
		return strings.HasPrefix(s, prefix), nil

	case "endsWith", "endswith":
		suffix, err := stringArg(name, args)
		if err != nil {
			return nil, err
		}
		return strings.HasSuffix(s, suffix), nil

	case "upper":
		if err := arity(name, args, 0); err != nil {
			return nil, err
		}
		return strings.ToUpper(s), nil

	case "lower":
		if err := arity(name, args, 0); err != nil {
			return nil, err
		}
		return strings.ToLower(s), nil

	case "strip":
		switch len(args) {
		case 0:
			return strings.TrimSpace(s), nil
		case 1:
			cutset, ok := args[0].(string)
			if !ok {
				return nil, fmt.Errorf("strip: expected string, got %s", typeName(args[0]))
			}
			return strings.Trim(s, cutset), nil
		}
		return nil, fmt.Errorf("strip expects 0 or 1 arguments, got %d", len(args))

	case "split":
		switch len(args) {
		case 0:
			fields := strings.Fields(s)
			result := make([]any, len(fields))
			for i, f := range fields {
				result[i] = f
			}
			return result, nil
		case 1:
			sep, ok := args[0].(string)
			if !ok {
				return nil, fmt.Errorf("split: separator must be a string, got %s", typeName(args[0]))
			}
			parts := strings.Split(s, sep)
			result := make([]any, len(parts))
			for i, p := range parts {
				result[i] = p
			}
			return result, nil
		}
		return nil, fmt.Errorf("split expects 0 or 1 arguments, got %d", len(args))

	case "replace":
		if err := arity(name, args, 2); err != nil {
			return nil, err
		}
		oldStr, ok1 := args[0].(string)
		newStr, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("replace: arguments must be strings")
		}
		return strings.ReplaceAll(s, oldStr, newStr), nil

	case "join":
		// Separator receiver with a list argument.
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		list, err := asList(name, args[0])
		if err != nil {
			return nil, err
		}
		return joinList(list, s)

	case "size":
		if err := arity(name, args, 0); err != nil {
			return nil, err
		}
		return int64(utf8.RuneCountInString(s)), nil
	}
	return nil, fmt.Errorf("method %q not supported on string", name)
}

func listMethod(list []any, name string, args []any) (any, error) {
	switch name {
	case "contains":
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		for _, elem := range list {
			if equals(elem, args[0]) {
				return true, nil
			}
		}
		return false, nil

	case "join":
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		sep, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("join: separator must be a string, got %s", typeName(args[0]))
		}
		return joinList(list, sep)

	case "size":
		if err := arity(name, args, 0); err != nil {
			return nil, err
		}
		return int64(len(list)), nil
	}
	return nil, fmt.Errorf("method %q not supported on list", name)
}

func joinList(list []any, sep string) (any, error) {
	parts := make([]string, len(list))
	for i, elem := range list {
		s, ok := elem.(string)
		if !ok {
			return nil, fmt.Errorf("join: element %d is %s, not string", i, typeName(elem))
		}
		parts[i] = s
	}
	return strings.Join(parts, sep), nil
}

func roundFunc(args []any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("round expects 1 or 2 arguments, got %d", len(args))
	}
	_, f, _, err := toNumber(args[0])
	if err != nil {
		return nil, fmt.Errorf("round: %w", err)
	}
	if len(args) == 1 {
		return int64(math.Round(f)), nil
	}
	digits, _, isInt, err := toNumber(args[1])
	if err != nil || !isInt {
		return nil, fmt.Errorf("round: digits must be an integer")
	}
	scale := math.Pow(10, float64(digits))
	return math.Round(f*scale) / scale, nil
}

func minMax(name string, args []any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%s expects at least 1 argument", name)
	}
	values := args
	if len(args) == 1 {
		list, ok := args[0].([]any)
		if !ok {
			return nil, fmt.Errorf("%s: expected list, got %s", name, typeName(args[0]))
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("%s: empty list", name)
		}
		values = list
	}

	best := values[0]
	for _, candidate := range values[1:] {
		cmp, err := compare(candidate, best)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if (name == "min" && cmp < 0) || (name == "max" && cmp > 0) {
			best = candidate
		}
	}
	return best, nil
}

func sumFunc(v any) (any, error) {
	list, err := asList("sum", v)
	if err != nil {
		return nil, err
	}
	var intSum int64
	var floatSum float64
	allInt := true
	for _, elem := range list {
		i, f, isInt, err := toNumber(elem)
		if err != nil {
			return nil, fmt.Errorf("sum: %w", err)
		}
		if isInt {
			intSum += i
			floatSum += float64(i)
		} else {
			allInt = false
			floatSum += f
		}
	}
	if allInt {
		return intSum, nil
	}
	return floatSum, nil
}

func sortedFunc(v any) (any, error) {
	list, err := asList("sorted", v)
	if err != nil {
		return nil, err
	}
	result := make([]any, len(list))
	copy(result, list)

	var sortErr error
	sort.SliceStable(result, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		cmp, err := compare(result[i], result[j])
		if err != nil {
			sortErr = err
			return false
		}
		return cmp < 0
	})
	if sortErr != nil {
		return nil, fmt.Errorf("sorted: %w", sortErr)
	}
	return result, nil
}

func length(v any) (any, error) {
	switch t := normalize(v).(type) {
	case string:
		return int64(utf8.RuneCountInString(t)), nil
	case []any:
		return int64(len(t)), nil
	case map[string]any:
		return int64(len(t)), nil
	}
	return nil, fmt.Errorf("len: cannot measure %s", typeName(v))
}

func stringify(v any) string {
	switch t := normalize(v).(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func toInt(v any) (any, error) {
	switch t := normalize(v).(type) {
	case int64:
		return t, nil
	case float64:
		return int64(t), nil
	case bool:
		if t {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("int: cannot parse %q", t)
		}
		return i, nil
	}
	return nil, fmt.Errorf("int: cannot convert %s", typeName(v))
}

func toFloat(v any) (any, error) {
	switch t := normalize(v).(type) {
	case int64:
		return float64(t), nil
	case float64:
		return t, nil
	case bool:
		if t {
			return float64(1), nil
		}
		return float64(0), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil, fmt.Errorf("float: cannot parse %q", t)
		}
		return f, nil
	}
	return nil, fmt.Errorf("float: cannot convert %s", typeName(v))
}

func toList(v any) (any, error) {
	switch t := normalize(v).(type) {
	case []any:
		result := make([]any, len(t))
		copy(result, t)
		return result, nil
	case map[string]any:
		keys := sortedKeys(t)
		result := make([]any, len(keys))
		for i, k := range keys {
			result[i] = k
		}
		return result, nil
	case string:
		result := make([]any, 0, len(t))
		for _, r := range t {
			result = append(result, string(r))
		}
		return result, nil
	}
	return nil, fmt.Errorf("list: cannot convert %s", typeName(v))
}

func asList(fn string, v any) ([]any, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected list, got %s", fn, typeName(v))
	}
	return list, nil
}

func stringArg(fn string, args []any) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%s expects 1 argument, got %d", fn, len(args))
	}
	s, ok := args[0].(string)
	if !ok {
		return "", fmt.Errorf("%s: expected string, got %s", fn, typeName(args[0]))
	}
	return s, nil
}

func arity(fn string, args []any, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s expects %d arguments, got %d", fn, n, len(args))
	}
	return nil
}
