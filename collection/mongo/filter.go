package mongo

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/hupe1980/docstash/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// errNoMatch marks a query that cannot match any stored document, such as an
// _id that is not an ObjectID.
var errNoMatch = errors.New("query matches nothing")

// bsonTypeNull is the BSON type code of null.
const bsonTypeNull = 10

// translate converts a validated FilterSet to a MongoDB filter.
//
// Conditions are ANDed. Every operator except ne requires the key to exist,
// matching document.Filter semantics where a missing key is unequal to anything.
func translate(fs *document.FilterSet) (bson.D, error) {
	if fs == nil || len(fs.Filters) == 0 {
		return bson.D{}, nil
	}

	conds := make(bson.A, 0, len(fs.Filters))
	for _, f := range fs.Filters {
		cond, err := translateFilter(f)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	return bson.D{{Key: "$and", Value: conds}}, nil
}

func translateFilter(f document.Filter) (bson.D, error) {
	if f.Key == document.KeyID {
		return translateID(f)
	}

	if f.Operator == document.OpContains {
		s, _ := f.Value.AsString()
		return bson.D{{Key: f.Key, Value: bson.D{
			{Key: "$type", Value: "string"},
			{Key: "$regex", Value: primitive.Regex{Pattern: regexp.QuoteMeta(s)}},
		}}}, nil
	}

	if f.Value.Kind == document.KindNull {
		switch f.Operator {
		case document.OpEqual:
			return bson.D{{Key: f.Key, Value: bson.D{{Key: "$type", Value: bsonTypeNull}}}}, nil
		case document.OpNotEqual:
			return bson.D{{Key: f.Key, Value: bson.D{{Key: "$not", Value: bson.D{{Key: "$type", Value: bsonTypeNull}}}}}}, nil
		}
	}

	v, err := valueToBSON(f.Value)
	if err != nil {
		return nil, err
	}
	// Ranges compare against native datetimes at millisecond precision.
	if f.Value.Kind == document.KindTime && f.Operator != document.OpEqual && f.Operator != document.OpNotEqual {
		v = primitive.NewDateTimeFromTime(f.Value.T)
	}

	var op string
	switch f.Operator {
	case document.OpEqual:
		op = "$eq"
	case document.OpNotEqual:
		return bson.D{{Key: f.Key, Value: bson.D{{Key: "$ne", Value: v}}}}, nil
	case document.OpGreaterThan:
		op = "$gt"
	case document.OpGreaterEqual:
		op = "$gte"
	case document.OpLessThan:
		op = "$lt"
	case document.OpLessEqual:
		op = "$lte"
	case document.OpIn:
		op = "$in"
	default:
		return nil, fmt.Errorf("unsupported operator %q", f.Operator)
	}

	return bson.D{{Key: f.Key, Value: bson.D{
		{Key: "$exists", Value: true},
		{Key: op, Value: v},
	}}}, nil
}

// translateID maps identifier filters onto ObjectIDs.
func translateID(f document.Filter) (bson.D, error) {
	switch f.Operator {
	case document.OpEqual:
		oid, ok := objectID(f.Value)
		if !ok {
			return nil, errNoMatch
		}
		return bson.D{{Key: "_id", Value: oid}}, nil
	case document.OpNotEqual:
		oid, ok := objectID(f.Value)
		if !ok {
			return bson.D{}, nil
		}
		return bson.D{{Key: "_id", Value: bson.D{{Key: "$ne", Value: oid}}}}, nil
	case document.OpIn:
		ids := bson.A{}
		for _, item := range f.Value.A {
			if oid, ok := objectID(item); ok {
				ids = append(ids, oid)
			}
		}
		if len(ids) == 0 {
			return nil, errNoMatch
		}
		return bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}}, nil
	default:
		return nil, fmt.Errorf("operator %q is not supported on %s", f.Operator, document.KeyID)
	}
}

func objectID(v document.Value) (primitive.ObjectID, bool) {
	s, ok := v.AsString()
	if !ok {
		return primitive.NilObjectID, false
	}
	oid, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return primitive.NilObjectID, false
	}
	return oid, true
}
