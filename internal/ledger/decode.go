package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/domain"
)

// DecodeError is a typed shape-mismatch error: the object exists on the
// ledger but its fields don't match the expected quiz schema. Callers must
// not treat this as "not found".
type DecodeError struct {
	ObjectID string
	Reason   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("ledger: decode quiz object %s: %s", e.ObjectID, e.Reason)
}

// quizFieldsV1 is the field layout of quiz objects minted by the current
// package version.
type quizFieldsV1 struct {
	Balance     string   `json:"balance"`
	URL         string   `json:"url"`
	PassedUsers []string `json:"passed_users"`
}

// DecodeQuizObject maps raw ledger fields to the typed quiz object. Every
// required field is checked explicitly; absence or a wrong shape yields a
// *DecodeError instead of a zero value.
func DecodeQuizObject(obj RawObject) (domain.QuizLedgerObject, error) {
	if len(obj.Fields) == 0 {
		return domain.QuizLedgerObject{}, &DecodeError{ObjectID: obj.ID, Reason: "object has no fields"}
	}

	var fields quizFieldsV1
	if err := json.Unmarshal(obj.Fields, &fields); err != nil {
		return domain.QuizLedgerObject{}, &DecodeError{ObjectID: obj.ID, Reason: err.Error()}
	}

	if fields.URL == "" {
		return domain.QuizLedgerObject{}, &DecodeError{ObjectID: obj.ID, Reason: "missing content uri field"}
	}
	if fields.Balance == "" {
		return domain.QuizLedgerObject{}, &DecodeError{ObjectID: obj.ID, Reason: "missing balance field"}
	}

	balance, err := strconv.ParseUint(fields.Balance, 10, 64)
	if err != nil {
		return domain.QuizLedgerObject{}, &DecodeError{ObjectID: obj.ID, Reason: fmt.Sprintf("balance %q is not an unsigned integer", fields.Balance)}
	}

	return domain.QuizLedgerObject{
		ID:          obj.ID,
		Balance:     balance,
		PassedUsers: fields.PassedUsers,
		ContentURI:  fields.URL,
	}, nil
}

// coinFields is the subset of a coin object's fields the coordinator reads
// during coin selection.
type coinFields struct {
	Balance string `json:"balance"`
}

func decodeCoinBalance(obj RawObject) (uint64, error) {
	var fields coinFields
	if err := json.Unmarshal(obj.Fields, &fields); err != nil {
		return 0, &DecodeError{ObjectID: obj.ID, Reason: err.Error()}
	}
	balance, err := strconv.ParseUint(fields.Balance, 10, 64)
	if err != nil {
		return 0, &DecodeError{ObjectID: obj.ID, Reason: fmt.Sprintf("coin balance %q is not an unsigned integer", fields.Balance)}
	}
	return balance, nil
}
