package condition

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Rule is a single field comparison, e.g. {"field":"kind","operator":"eq","value":"payment"}.
type Rule struct {
	Field    string      `json:"field" bson:"field"`
	Operator string      `json:"operator" bson:"operator"` // eq, ne, gt, lt, gte, lte, in, nin, contains, starts_with, ends_with
	Value    interface{} `json:"value" bson:"value"`
}

// Group combines rules and nested groups with AND or OR.
type Group struct {
	Operator string  `json:"operator" bson:"operator"` // "AND" | "OR"
	Rules    []Rule  `json:"rules" bson:"rules"`
	Groups   []Group `json:"groups" bson:"groups"`
}

// Compiler turns a Group into a Mongo filter. Only fields listed in Allowed
// may be referenced; values of the form "$name" are resolved from Context.
type Compiler struct {
	Allowed map[string]bool
	Context map[string]interface{}
	Now     func() time.Time
}

func NewCompiler(allowed []string, ctx map[string]interface{}) *Compiler {
	fields := make(map[string]bool, len(allowed))
	for _, f := range allowed {
		fields[f] = true
	}
	return &Compiler{Allowed: fields, Context: ctx, Now: time.Now}
}

func (c *Compiler) Compile(group *Group) (bson.M, error) {
	if group == nil {
		return bson.M{}, nil
	}

	var conditions []bson.M

	for _, rule := range group.Rules {
		cond, err := c.compileRule(rule)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, cond)
	}

	for i := range group.Groups {
		cond, err := c.Compile(&group.Groups[i])
		if err != nil {
			return nil, err
		}
		if len(cond) > 0 {
			conditions = append(conditions, cond)
		}
	}

	if len(conditions) == 0 {
		return bson.M{}, nil
	}

	op := "$and"
	if strings.ToUpper(group.Operator) == "OR" {
		op = "$or"
	}

	return bson.M{op: conditions}, nil
}

func (c *Compiler) compileRule(rule Rule) (bson.M, error) {
	if !c.Allowed[rule.Field] {
		return nil, fmt.Errorf("field not filterable: %s", rule.Field)
	}

	val, err := c.resolveValue(rule.Value)
	if err != nil {
		return nil, err
	}

	field := rule.Field

	switch rule.Operator {
	case "eq":
		return bson.M{field: bson.M{"$eq": val}}, nil
	case "ne":
		return bson.M{field: bson.M{"$ne": val}}, nil
	case "gt":
		return bson.M{field: bson.M{"$gt": val}}, nil
	case "lt":
		return bson.M{field: bson.M{"$lt": val}}, nil
	case "gte":
		return bson.M{field: bson.M{"$gte": val}}, nil
	case "lte":
		return bson.M{field: bson.M{"$lte": val}}, nil
	case "in":
		return bson.M{field: bson.M{"$in": val}}, nil
	case "nin":
		return bson.M{field: bson.M{"$nin": val}}, nil
	case "contains":
		if strVal, ok := val.(string); ok {
			return bson.M{field: bson.M{"$regex": primitive.Regex{Pattern: regexp.QuoteMeta(strVal), Options: "i"}}}, nil
		}
		return nil, fmt.Errorf("contains operator requires string value")
	case "starts_with":
		if strVal, ok := val.(string); ok {
			return bson.M{field: bson.M{"$regex": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(strVal), Options: "i"}}}, nil
		}
		return nil, fmt.Errorf("starts_with operator requires string value")
	case "ends_with":
		if strVal, ok := val.(string); ok {
			return bson.M{field: bson.M{"$regex": primitive.Regex{Pattern: regexp.QuoteMeta(strVal) + "$", Options: "i"}}}, nil
		}
		return nil, fmt.Errorf("ends_with operator requires string value")
	default:
		return nil, fmt.Errorf("unknown operator: %s", rule.Operator)
	}
}

// resolveValue expands "$now", "$now-<duration>" and Context variables.
func (c *Compiler) resolveValue(val interface{}) (interface{}, error) {
	strVal, ok := val.(string)
	if !ok || !strings.HasPrefix(strVal, "$") {
		return val, nil
	}

	key := strings.TrimPrefix(strVal, "$")

	if key == "now" {
		return c.Now(), nil
	}
	if rest, found := strings.CutPrefix(key, "now-"); found {
		d, err := time.ParseDuration(rest)
		if err != nil {
			return nil, fmt.Errorf("invalid relative time %q: %w", strVal, err)
		}
		return c.Now().Add(-d), nil
	}

	if resolved, ok := c.Context[key]; ok {
		return resolved, nil
	}
	return nil, fmt.Errorf("variable not found in context: %s", key)
}
