// Package ledgertest runs an in-memory ledger node over HTTP for tests. It
// implements the coordinator's RPC surface with real object semantics: coin
// splitting, quiz minting with an escrowed balance, and an at-most-once pass
// entrypoint.
package ledgertest

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/ledger"
)

type coin struct {
	id       string
	owner    string
	coinType string
	balance  uint64
}

type quiz struct {
	id          string
	objectType  string
	balance     uint64
	url         string
	passReward  uint64
	passedUsers []string
}

// Node is a fake ledger fullnode. All mutating semantics live server side,
// like on a real network: the client only submits signed transactions.
type Node struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	seq      int
	coins    map[string]*coin
	quizzes  map[string]*quiz
	balances map[string]uint64 // owner + "/" + coinType

	// FailSubmits makes the next n submissions fail with a node error.
	FailSubmits int
	// UnavailableReads makes the next n read calls fail at transport level.
	UnavailableReads int
}

func New(t *testing.T) *Node {
	n := &Node{
		t:        t,
		coins:    map[string]*coin{},
		quizzes:  map[string]*quiz{},
		balances: map[string]uint64{},
	}
	n.srv = httptest.NewServer(http.HandlerFunc(n.handle))
	t.Cleanup(n.srv.Close)
	return n
}

// URL is the node's JSON-RPC endpoint.
func (n *Node) URL() string { return n.srv.URL }

// AddCoin registers a coin object owned by owner.
func (n *Node) AddCoin(owner, coinType string, balance uint64) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.seq++
	id := fmt.Sprintf("0xcoin%d", n.seq)
	n.coins[id] = &coin{id: id, owner: owner, coinType: coinType, balance: balance}
	return id
}

// SetBalance sets owner's aggregate balance of coinType, as reported by
// getBalance.
func (n *Node) SetBalance(owner, coinType string, balance uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.balances[owner+"/"+coinType] = balance
}

// Quiz returns a snapshot of a minted quiz object.
func (n *Node) Quiz(id string) (balance uint64, passedUsers []string, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	q, ok := n.quizzes[id]
	if !ok {
		return 0, nil, false
	}
	return q.balance, append([]string(nil), q.passedUsers...), true
}

// CoinBalance returns the remaining balance of a coin object.
func (n *Node) CoinBalance(id string) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if c, ok := n.coins[id]; ok {
		return c.balance
	}
	return 0
}

type rpcRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (n *Node) handle(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if req.Method != "ledger_submitTransaction" && n.UnavailableReads > 0 {
		n.UnavailableReads--
		http.Error(w, "node overloaded", http.StatusServiceUnavailable)
		return
	}

	switch req.Method {
	case "ledger_getBalance":
		n.getBalance(w, req.Params)
	case "ledger_getObject":
		n.getObject(w, req.Params)
	case "ledger_getOwnedObjects":
		n.getOwnedObjects(w, req.Params)
	case "ledger_submitTransaction":
		n.submit(w, req.Params)
	default:
		writeError(w, -32601, "method not found: "+req.Method)
	}
}

func (n *Node) getBalance(w http.ResponseWriter, params json.RawMessage) {
	var p struct {
		Owner    string `json:"owner"`
		CoinType string `json:"coinType"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		writeError(w, -32602, err.Error())
		return
	}

	writeResult(w, map[string]string{
		"totalBalance": strconv.FormatUint(n.balances[p.Owner+"/"+p.CoinType], 10),
	})
}

func (n *Node) getObject(w http.ResponseWriter, params json.RawMessage) {
	var p struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		writeError(w, -32602, err.Error())
		return
	}

	q, ok := n.quizzes[p.ID]
	if !ok {
		writeResult(w, map[string]any{"object": nil})
		return
	}

	writeResult(w, map[string]any{"object": n.rawQuiz(q)})
}

func (n *Node) getOwnedObjects(w http.ResponseWriter, params json.RawMessage) {
	var p struct {
		Owner      string `json:"owner"`
		StructType string `json:"structType"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		writeError(w, -32602, err.Error())
		return
	}

	objects := []ledger.RawObject{}
	for _, c := range n.coins {
		if c.owner == p.Owner && ledger.CoinObjectType(c.coinType) == p.StructType {
			objects = append(objects, n.rawCoin(c))
		}
	}

	writeResult(w, map[string]any{"objects": objects})
}

func (n *Node) submit(w http.ResponseWriter, params json.RawMessage) {
	if n.FailSubmits > 0 {
		n.FailSubmits--
		writeError(w, 100, "execution failed")
		return
	}

	var signed ledger.SignedTransaction
	if err := json.Unmarshal(params, &signed); err != nil {
		writeError(w, -32602, err.Error())
		return
	}

	if !ed25519.Verify(ed25519.PublicKey(signed.PublicKey), signed.TxBytes, signed.Signature) {
		writeError(w, 101, "signature verification failed")
		return
	}

	var tx ledger.Transaction
	if err := json.Unmarshal(signed.TxBytes, &tx); err != nil {
		writeError(w, -32602, err.Error())
		return
	}

	changes, err := n.execute(tx)
	if err != nil {
		writeError(w, 102, err.Error())
		return
	}

	n.seq++
	writeResult(w, ledger.TxResult{
		Digest:        fmt.Sprintf("0xdigest%d", n.seq),
		ObjectChanges: changes,
	})
}

// execute applies the transaction's ops in order. Results of previous ops are
// addressable by index, which is how a mint consumes a preceding split.
func (n *Node) execute(tx ledger.Transaction) ([]ledger.ObjectChange, error) {
	var (
		changes []ledger.ObjectChange
		results []uint64 // op index -> split amount
	)

	for _, op := range tx.Ops {
		switch op.Kind {
		case ledger.OpSplitCoin:
			c, ok := n.coins[op.Coin]
			if !ok {
				return nil, fmt.Errorf("coin %s does not exist", op.Coin)
			}
			if c.owner != tx.Sender {
				return nil, fmt.Errorf("coin %s is not owned by sender", op.Coin)
			}
			if c.balance < op.Amount {
				return nil, fmt.Errorf("coin %s balance %d below %d", op.Coin, c.balance, op.Amount)
			}
			c.balance -= op.Amount
			results = append(results, op.Amount)

		case ledger.OpMoveCall:
			change, err := n.moveCall(op, results)
			if err != nil {
				return nil, err
			}
			changes = append(changes, change)
			results = append(results, 0)

		default:
			return nil, fmt.Errorf("unknown op kind %q", op.Kind)
		}
	}

	return changes, nil
}

func (n *Node) moveCall(op ledger.Op, results []uint64) (ledger.ObjectChange, error) {
	if isEntry(op.Target, "mint_to_sender") {
		// args: name, description, uri, escrow coin (split result), pass reward
		if len(op.Args) != 5 {
			return ledger.ObjectChange{}, fmt.Errorf("mint_to_sender wants 5 args, got %d", len(op.Args))
		}
		if op.Args[3].Result == nil {
			return ledger.ObjectChange{}, fmt.Errorf("mint_to_sender escrow must reference a split result")
		}
		escrow := results[*op.Args[3].Result]

		uri, _ := op.Args[2].Pure.(string)
		passReward, err := pureUint(op.Args[4].Pure)
		if err != nil {
			return ledger.ObjectChange{}, fmt.Errorf("mint_to_sender pass reward: %w", err)
		}

		n.seq++
		objectType := fmt.Sprintf("%s::Quiz<%s>", entryPrefix(op.Target), op.TypeArgs[0])
		q := &quiz{
			id:         fmt.Sprintf("0xquiz%d", n.seq),
			objectType: objectType,
			balance:    escrow,
			url:        uri,
			passReward: passReward,
		}
		n.quizzes[q.id] = q

		return ledger.ObjectChange{Kind: "created", ObjectType: objectType, ObjectID: q.id}, nil
	}

	if isEntry(op.Target, "pass") {
		if len(op.Args) != 2 {
			return ledger.ObjectChange{}, fmt.Errorf("pass wants 2 args, got %d", len(op.Args))
		}

		q, ok := n.quizzes[op.Args[0].Object]
		if !ok {
			return ledger.ObjectChange{}, fmt.Errorf("quiz %s does not exist", op.Args[0].Object)
		}

		user, _ := op.Args[1].Pure.(string)
		for _, u := range q.passedUsers {
			if u == user {
				return ledger.ObjectChange{}, fmt.Errorf("user %s has already passed", user)
			}
		}
		if q.balance < q.passReward {
			return ledger.ObjectChange{}, fmt.Errorf("quiz balance %d below reward %d", q.balance, q.passReward)
		}

		q.balance -= q.passReward
		q.passedUsers = append(q.passedUsers, user)
		n.balances[user+"/"+rewardCoinType(q.objectType)] += q.passReward

		return ledger.ObjectChange{Kind: "mutated", ObjectType: q.objectType, ObjectID: q.id}, nil
	}

	return ledger.ObjectChange{}, fmt.Errorf("unknown move call target %q", op.Target)
}

func (n *Node) rawQuiz(q *quiz) ledger.RawObject {
	fields, _ := json.Marshal(map[string]any{
		"balance":      strconv.FormatUint(q.balance, 10),
		"url":          q.url,
		"passed_users": q.passedUsers,
	})
	return ledger.RawObject{ID: q.id, Type: q.objectType, Version: 1, Fields: fields}
}

func (n *Node) rawCoin(c *coin) ledger.RawObject {
	fields, _ := json.Marshal(map[string]string{
		"balance": strconv.FormatUint(c.balance, 10),
	})
	return ledger.RawObject{ID: c.id, Type: ledger.CoinObjectType(c.coinType), Version: 1, Fields: fields}
}

func isEntry(target, entry string) bool {
	const suffixLen = len("::quiz::")
	i := len(target) - len(entry)
	return i > suffixLen && target[i:] == entry && target[i-suffixLen:i] == "::quiz::"
}

// entryPrefix turns "<pkg>::quiz::mint_to_sender" into "<pkg>::quiz".
func entryPrefix(target string) string {
	for i := len(target) - 1; i > 0; i-- {
		if target[i] == ':' && target[i-1] == ':' {
			return target[:i-1]
		}
	}
	return target
}

// rewardCoinType extracts the coin type parameter from "<pkg>::quiz::Quiz<T>".
func rewardCoinType(objectType string) string {
	start := -1
	for i, r := range objectType {
		if r == '<' {
			start = i + 1
			break
		}
	}
	if start < 0 || objectType[len(objectType)-1] != '>' {
		return ""
	}
	return objectType[start : len(objectType)-1]
}

// pureUint tolerates the number form a JSON round trip produces.
func pureUint(v any) (uint64, error) {
	switch x := v.(type) {
	case float64:
		return uint64(x), nil
	case string:
		return strconv.ParseUint(x, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported pure value %T", v)
	}
}

func writeResult(w http.ResponseWriter, result any) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"result":  result,
	})
}

func writeError(w http.ResponseWriter, code int, message string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"error":   map[string]any{"code": code, "message": message},
	})
}
