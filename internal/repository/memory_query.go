package repository

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
)

// --- filters ---

func matchDocument(doc bson.M, filter bson.M) (bool, error) {
	for key, cond := range filter {
		var ok bool
		var err error
		switch key {
		case "$or", "$and", "$nor":
			ok, err = matchLogical(doc, key, cond)
		default:
			ok, err = matchField(doc, key, cond)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchLogical(doc bson.M, op string, cond interface{}) (bool, error) {
	clauses, ok := domain.AsArray(cond)
	if !ok || len(clauses) == 0 {
		return false, fmt.Errorf("%s needs a non-empty array", op)
	}

	matched := 0
	for _, c := range clauses {
		sub, ok := domain.AsDocument(c)
		if !ok {
			return false, fmt.Errorf("%s clause is not a document", op)
		}
		ok, err := matchDocument(doc, sub)
		if err != nil {
			return false, err
		}
		if ok {
			matched++
		}
	}

	switch op {
	case "$or":
		return matched > 0, nil
	case "$and":
		return matched == len(clauses), nil
	}
	return matched == 0, nil
}

func matchField(doc bson.M, path string, cond interface{}) (bool, error) {
	values := pathValues(doc, strings.Split(path, "."))

	ops, isOps := operatorDocument(cond)
	if !isOps {
		return matchEquals(values, cond), nil
	}

	for op, arg := range ops {
		ok, err := matchOperator(values, op, arg)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchOperator(values []interface{}, op string, arg interface{}) (bool, error) {
	switch op {
	case "$eq":
		return matchEquals(values, arg), nil
	case "$ne":
		return !matchEquals(values, arg), nil
	case "$exists":
		return truthy(arg) == (len(values) > 0), nil
	case "$in", "$nin":
		list, ok := domain.AsArray(arg)
		if !ok {
			return false, fmt.Errorf("%s needs an array", op)
		}
		found := false
		for _, target := range list {
			if matchEquals(values, target) {
				found = true
				break
			}
		}
		return found == (op == "$in"), nil
	case "$gt", "$gte", "$lt", "$lte":
		for _, v := range candidates(values) {
			if typeRank(v) != typeRank(arg) {
				continue
			}
			c := compareValues(v, arg)
			if (op == "$gt" && c > 0) || (op == "$gte" && c >= 0) ||
				(op == "$lt" && c < 0) || (op == "$lte" && c <= 0) {
				return true, nil
			}
		}
		return false, nil
	case "$size":
		n, ok := domain.NumberValue(arg)
		if !ok {
			return false, fmt.Errorf("$size needs a number")
		}
		for _, v := range values {
			if arr, ok := domain.AsArray(v); ok && len(arr) == int(n) {
				return true, nil
			}
		}
		return false, nil
	case "$not":
		sub, ok := operatorDocument(arg)
		if !ok {
			return false, fmt.Errorf("$not needs an operator document")
		}
		for subOp, subArg := range sub {
			ok, err := matchOperator(values, subOp, subArg)
			if err != nil {
				return false, err
			}
			if !ok {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("unsupported query operator %s", op)
}

func truthy(v interface{}) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	n, ok := domain.NumberValue(v)
	return ok && n != 0
}

func matchEquals(values []interface{}, target interface{}) bool {
	if target == nil {
		if len(values) == 0 {
			return true
		}
		for _, v := range values {
			if v == nil {
				return true
			}
		}
		return false
	}
	for _, v := range values {
		if valuesEqual(v, target) {
			return true
		}
	}
	for _, v := range candidates(values) {
		if valuesEqual(v, target) {
			return true
		}
	}
	return false
}

// operatorDocument reports whether cond is {$op: arg, ...}
func operatorDocument(cond interface{}) (bson.M, bool) {
	m, ok := domain.AsDocument(cond)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

// pathValues resolves a dotted path, descending through arrays the way
// MongoDB does: numeric segments index, others fan out over elements
func pathValues(v interface{}, parts []string) []interface{} {
	if len(parts) == 0 {
		return []interface{}{v}
	}
	if m, ok := domain.AsDocument(v); ok {
		child, ok := m[parts[0]]
		if !ok {
			return nil
		}
		return pathValues(child, parts[1:])
	}
	if arr, ok := domain.AsArray(v); ok {
		if idx, err := strconv.Atoi(parts[0]); err == nil {
			if idx >= 0 && idx < len(arr) {
				return pathValues(arr[idx], parts[1:])
			}
			return nil
		}
		var out []interface{}
		for _, el := range arr {
			if _, isDoc := domain.AsDocument(el); isDoc {
				out = append(out, pathValues(el, parts)...)
			}
		}
		return out
	}
	return nil
}

func firstPathValue(doc bson.M, path string) (interface{}, bool) {
	values := pathValues(doc, strings.Split(path, "."))
	switch len(values) {
	case 0:
		return nil, false
	case 1:
		return values[0], true
	}
	return bson.A(values), true
}

// candidates adds the elements of array values
func candidates(values []interface{}) []interface{} {
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		if arr, ok := domain.AsArray(v); ok {
			out = append(out, arr...)
			continue
		}
		out = append(out, v)
	}
	return out
}

// --- comparison ---

func typeRank(v interface{}) int {
	if v == nil {
		return 0
	}
	if _, ok := domain.NumberValue(v); ok {
		return 1
	}
	switch v.(type) {
	case string:
		return 2
	case primitive.ObjectID:
		return 5
	case bool:
		return 6
	case time.Time, primitive.DateTime:
		return 7
	}
	if _, ok := domain.AsDocument(v); ok {
		return 3
	}
	if _, ok := domain.AsArray(v); ok {
		return 4
	}
	return 8
}

func compareValues(a, b interface{}) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 1:
		x, _ := domain.NumberValue(a)
		y, _ := domain.NumberValue(b)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case 2:
		return strings.Compare(a.(string), b.(string))
	case 5:
		return strings.Compare(a.(primitive.ObjectID).Hex(), b.(primitive.ObjectID).Hex())
	case 6:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case 7:
		x, _ := domain.TimeValue(a)
		y, _ := domain.TimeValue(b)
		return x.Compare(y)
	}
	if reflect.DeepEqual(normalizeValue(a), normalizeValue(b)) {
		return 0
	}
	return strings.Compare(fmt.Sprint(normalizeValue(a)), fmt.Sprint(normalizeValue(b)))
}

func valuesEqual(a, b interface{}) bool {
	return typeRank(a) == typeRank(b) && compareValues(a, b) == 0
}

// normalizeValue maps equivalent BSON representations onto one Go shape
func normalizeValue(v interface{}) interface{} {
	if n, ok := domain.NumberValue(v); ok {
		return n
	}
	if t, ok := v.(primitive.DateTime); ok {
		return t.Time().UTC()
	}
	if t, ok := v.(time.Time); ok {
		return t.UTC()
	}
	if m, ok := domain.AsDocument(v); ok {
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[k] = normalizeValue(val)
		}
		return out
	}
	if arr, ok := domain.AsArray(v); ok {
		out := make([]interface{}, len(arr))
		for i := range arr {
			out[i] = normalizeValue(arr[i])
		}
		return out
	}
	return v
}

// --- updates ---

func applyUpdate(doc bson.M, update Update) error {
	paths := make([]string, 0, len(update.Set)+len(update.Unset))
	for p := range update.Set {
		paths = append(paths, p)
	}
	paths = append(paths, update.Unset...)
	sort.Strings(paths)
	for i := 1; i < len(paths); i++ {
		if paths[i] == paths[i-1] || strings.HasPrefix(paths[i], paths[i-1]+".") {
			return fmt.Errorf("updating the path '%s' would create a conflict at '%s'", paths[i], paths[i-1])
		}
	}

	for path, value := range update.Set {
		if path == "_id" {
			return fmt.Errorf("performing an update on the path '_id' would modify the immutable field '_id'")
		}
		if err := setPath(doc, strings.Split(path, "."), value); err != nil {
			return err
		}
	}
	for _, path := range update.Unset {
		unsetPath(doc, strings.Split(path, "."))
	}
	return nil
}

func setPath(doc bson.M, parts []string, value interface{}) error {
	if len(parts) == 1 {
		doc[parts[0]] = cloneAny(value)
		return nil
	}

	child, ok := doc[parts[0]]
	if !ok || child == nil {
		next := bson.M{}
		doc[parts[0]] = next
		return setPath(next, parts[1:], value)
	}
	if m, ok := domain.AsDocument(child); ok {
		if _, isD := child.(bson.D); isD {
			doc[parts[0]] = m
		}
		return setPath(m, parts[1:], value)
	}
	if arr, ok := domain.AsArray(child); ok {
		idx, err := strconv.Atoi(parts[1])
		if err != nil || idx < 0 || idx >= len(arr) {
			return fmt.Errorf("cannot create field '%s' in array element", parts[1])
		}
		if len(parts) == 2 {
			arr[idx] = cloneAny(value)
			return nil
		}
		m, ok := domain.AsDocument(arr[idx])
		if !ok {
			return fmt.Errorf("cannot create field '%s' in non-document element", parts[2])
		}
		return setPath(m, parts[2:], value)
	}
	return fmt.Errorf("cannot create field '%s' in element {%s: %v}", parts[1], parts[0], child)
}

func unsetPath(doc bson.M, parts []string) {
	if len(parts) == 1 {
		delete(doc, parts[0])
		return
	}
	if m, ok := domain.AsDocument(doc[parts[0]]); ok {
		unsetPath(m, parts[1:])
	}
}

func cloneAny(v interface{}) interface{} {
	if m, ok := domain.AsDocument(v); ok {
		return domain.CloneDocument(m)
	}
	if _, ok := domain.AsArray(v); ok {
		return domain.CloneDocument(bson.M{"v": v})["v"]
	}
	return v
}

// --- aggregation ---

func runStage(op string, spec interface{}, docs []bson.M) ([]bson.M, error) {
	switch op {
	case "$match":
		filter, ok := domain.AsDocument(spec)
		if !ok {
			return nil, fmt.Errorf("$match needs a document")
		}
		out := docs[:0:0]
		for _, doc := range docs {
			ok, err := matchDocument(doc, filter)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, doc)
			}
		}
		return out, nil
	case "$unwind":
		return unwindStage(spec, docs)
	case "$group":
		return groupStage(spec, docs)
	case "$sort":
		order, err := sortSpec(spec)
		if err != nil {
			return nil, err
		}
		sortDocuments(docs, order)
		return docs, nil
	case "$limit":
		n, ok := domain.NumberValue(spec)
		if !ok || n < 0 {
			return nil, fmt.Errorf("$limit needs a non-negative number")
		}
		if int(n) < len(docs) {
			docs = docs[:int(n)]
		}
		return docs, nil
	case "$count":
		field, ok := spec.(string)
		if !ok || field == "" {
			return nil, fmt.Errorf("$count needs a field name")
		}
		if len(docs) == 0 {
			return nil, nil
		}
		return []bson.M{{field: int64(len(docs))}}, nil
	case "$project":
		return projectStage(spec, docs)
	}
	return nil, fmt.Errorf("unsupported aggregation stage %s", op)
}

func unwindStage(spec interface{}, docs []bson.M) ([]bson.M, error) {
	path, preserve := "", false
	switch s := spec.(type) {
	case string:
		path = s
	default:
		m, ok := domain.AsDocument(spec)
		if !ok {
			return nil, fmt.Errorf("$unwind needs a path")
		}
		path, _ = m["path"].(string)
		preserve, _ = m["preserveNullAndEmptyArrays"].(bool)
	}
	if !strings.HasPrefix(path, "$") {
		return nil, fmt.Errorf("$unwind path must start with $")
	}
	path = strings.TrimPrefix(path, "$")
	parts := strings.Split(path, ".")

	var out []bson.M
	for _, doc := range docs {
		v, _ := firstPathValue(doc, path)
		arr, isArr := domain.AsArray(v)
		switch {
		case isArr && len(arr) > 0:
			for _, el := range arr {
				clone := domain.CloneDocument(doc)
				if err := setPath(clone, parts, el); err != nil {
					return nil, err
				}
				out = append(out, clone)
			}
		case !isArr && v != nil:
			out = append(out, doc)
		case preserve:
			clone := domain.CloneDocument(doc)
			unsetPath(clone, parts)
			out = append(out, clone)
		}
	}
	return out, nil
}

type groupState struct {
	doc     bson.M
	sums    map[string]*sumState
	counted map[string]int
	avgs    map[string]bool
}

type sumState struct {
	intSum   int64
	floatSum float64
	isFloat  bool
}

func (s *sumState) add(v interface{}) {
	switch n := v.(type) {
	case int:
		s.intSum += int64(n)
		s.floatSum += float64(n)
		return
	case int32:
		s.intSum += int64(n)
		s.floatSum += float64(n)
		return
	case int64:
		s.intSum += n
		s.floatSum += float64(n)
		return
	}
	if f, ok := domain.NumberValue(v); ok {
		s.floatSum += f
		s.isFloat = true
	}
}

func (s *sumState) value() interface{} {
	if s.isFloat {
		return s.floatSum
	}
	return s.intSum
}

func groupStage(spec interface{}, docs []bson.M) ([]bson.M, error) {
	m, ok := domain.AsDocument(spec)
	if !ok {
		return nil, fmt.Errorf("$group needs a document")
	}
	idExpr, ok := m["_id"]
	if !ok {
		return nil, fmt.Errorf("$group needs an _id")
	}

	var order []string
	groups := make(map[string]*groupState)

	for _, doc := range docs {
		id := evalExpression(doc, idExpr)
		key := fmt.Sprintf("%#v", normalizeValue(id))
		g, ok := groups[key]
		if !ok {
			g = &groupState{
				doc:     bson.M{"_id": id},
				sums:    map[string]*sumState{},
				counted: map[string]int{},
				avgs:    map[string]bool{},
			}
			groups[key] = g
			order = append(order, key)
		}

		for field, accSpec := range m {
			if field == "_id" {
				continue
			}
			acc, ok := operatorDocument(accSpec)
			if !ok || len(acc) != 1 {
				return nil, fmt.Errorf("$group field %s needs one accumulator", field)
			}
			for accOp, expr := range acc {
				if err := accumulate(g, field, accOp, evalExpression(doc, expr)); err != nil {
					return nil, err
				}
			}
		}
	}

	out := make([]bson.M, 0, len(order))
	for _, key := range order {
		g := groups[key]
		for field, s := range g.sums {
			if g.avgs[field] {
				if n := g.counted[field]; n > 0 {
					g.doc[field] = s.floatSum / float64(n)
				} else {
					g.doc[field] = nil
				}
				continue
			}
			g.doc[field] = s.value()
		}
		out = append(out, g.doc)
	}
	return out, nil
}

func accumulate(g *groupState, field, op string, v interface{}) error {
	switch op {
	case "$sum", "$avg":
		s, ok := g.sums[field]
		if !ok {
			s = &sumState{}
			g.sums[field] = s
			g.avgs[field] = op == "$avg"
		}
		if _, isNum := domain.NumberValue(v); isNum {
			s.add(v)
			g.counted[field]++
		}
	case "$first":
		if _, ok := g.doc[field]; !ok {
			g.doc[field] = v
		}
	case "$last":
		g.doc[field] = v
	case "$push":
		arr, _ := g.doc[field].(bson.A)
		g.doc[field] = append(arr, v)
	case "$addToSet":
		arr, _ := g.doc[field].(bson.A)
		for _, existing := range arr {
			if valuesEqual(existing, v) {
				return nil
			}
		}
		g.doc[field] = append(arr, v)
	case "$max", "$min":
		cur, ok := g.doc[field]
		if v == nil {
			if !ok {
				g.doc[field] = nil
			}
			return nil
		}
		c := compareValues(v, cur)
		if !ok || cur == nil || (op == "$max" && c > 0) || (op == "$min" && c < 0) {
			g.doc[field] = v
		}
	default:
		return fmt.Errorf("unsupported accumulator %s", op)
	}
	return nil
}

// evalExpression resolves "$path" references, compound documents and literals
func evalExpression(doc bson.M, expr interface{}) interface{} {
	switch e := expr.(type) {
	case string:
		if strings.HasPrefix(e, "$") {
			v, _ := firstPathValue(doc, strings.TrimPrefix(e, "$"))
			return v
		}
		return e
	}
	if m, ok := domain.AsDocument(expr); ok {
		out := bson.M{}
		for k, sub := range m {
			out[k] = evalExpression(doc, sub)
		}
		return out
	}
	return expr
}

func sortSpec(spec interface{}) (bson.D, error) {
	if d, ok := spec.(bson.D); ok {
		return d, nil
	}
	m, ok := domain.AsDocument(spec)
	if !ok {
		return nil, fmt.Errorf("$sort needs a document")
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	order := make(bson.D, 0, len(keys))
	for _, k := range keys {
		order = append(order, bson.E{Key: k, Value: m[k]})
	}
	return order, nil
}

func projectStage(spec interface{}, docs []bson.M) ([]bson.M, error) {
	m, ok := domain.AsDocument(spec)
	if !ok {
		return nil, fmt.Errorf("$project needs a document")
	}

	out := make([]bson.M, 0, len(docs))
	for _, doc := range docs {
		projected := bson.M{}
		if v, ok := doc["_id"]; ok {
			projected["_id"] = v
		}
		for field, rule := range m {
			switch r := rule.(type) {
			case string:
				projected[field] = evalExpression(doc, r)
			case bool:
				if !r {
					delete(projected, field)
				} else if v, ok := firstPathValue(doc, field); ok {
					projected[field] = v
				}
			default:
				n, isNum := domain.NumberValue(rule)
				if !isNum {
					projected[field] = evalExpression(doc, rule)
				} else if n == 0 {
					delete(projected, field)
				} else if v, ok := firstPathValue(doc, field); ok {
					projected[field] = v
				}
			}
		}
		out = append(out, projected)
	}
	return out, nil
}
