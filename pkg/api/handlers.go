package api

import (
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"github.com/LICODX/rnr-network/pkg/core"
	"github.com/LICODX/rnr-network/pkg/network"
	"github.com/LICODX/rnr-network/pkg/utils"
)

const maxBodyBytes = 1 << 16

// Amounts travel as base-10 strings.

type NodeResponse struct {
	ID                   uint64 `json:"id"`
	Owner                string `json:"owner"`
	RegisteredAt         uint64 `json:"registered_at"`
	Staked               string `json:"staked"`
	Boost                string `json:"boost"`
	LastInfluenceEventAt uint64 `json:"last_influence_event_at"`
	EffectiveInfluence   string `json:"effective_influence"`
}

type CycleResponse struct {
	Number         uint64 `json:"number"`
	StartedAt      uint64 `json:"started_at"`
	EndsAt         uint64 `json:"ends_at,omitempty"`
	Pool           string `json:"pool"`
	TotalInfluence string `json:"total_influence"`
	Sealed         bool   `json:"sealed"`
	SealedAt       uint64 `json:"sealed_at,omitempty"`
	Paid           string `json:"paid"`
}

type ActionResponse struct {
	ID            uint64 `json:"id"`
	ResourceCost  string `json:"resource_cost"`
	InfluenceCost string `json:"influence_cost"`
	Step          uint64 `json:"step"`
	Dynamic       bool   `json:"dynamic"`
}

type InfoResponse struct {
	Admin        string            `json:"admin"`
	Cycle        uint64            `json:"cycle"`
	CycleEndsAt  uint64            `json:"cycle_ends_at"`
	Nodes        uint64            `json:"nodes"`
	NetworkState uint64            `json:"network_state"`
	Paused       bool              `json:"paused"`
	Params       map[string]string `json:"params"`
	Timestamp    uint64            `json:"timestamp"`
}

type EscrowResponse struct {
	Balance      string `json:"balance"`
	OpenPool     string `json:"open_pool"`
	SealedUnpaid string `json:"sealed_unpaid"`
	Liability    string `json:"liability"`
	Excess       string `json:"excess"`
	Solvent      bool   `json:"solvent"`
}

type AuditResponse struct {
	ID       string `json:"id"`
	Seq      uint64 `json:"seq"`
	Kind     string `json:"kind"`
	At       uint64 `json:"at"`
	Actor    string `json:"actor"`
	Node     uint64 `json:"node,omitempty"`
	Cycle    uint64 `json:"cycle,omitempty"`
	Amount   string `json:"amount,omitempty"`
	Detail   string `json:"detail,omitempty"`
	PrevHash string `json:"prev_hash"`
	Hash     string `json:"hash"`
}

type AuditHeadResponse struct {
	Head     string `json:"head"`
	Events   uint64 `json:"events"`
	Verified bool   `json:"verified"`
	Error    string `json:"error,omitempty"`
}

type AmountRequest struct {
	Amount string `json:"amount"`
}

type ValueRequest struct {
	Value string `json:"value"`
}

type TransferRequest struct {
	To string `json:"to"`
}

type RegisterActionRequest struct {
	ID            uint64 `json:"id"`
	ResourceCost  string `json:"resource_cost"`
	InfluenceCost string `json:"influence_cost"`
	Step          uint64 `json:"step"`
}

func nodeResponse(n *core.Node, influence *uint256.Int) NodeResponse {
	return NodeResponse{
		ID:                   uint64(n.ID),
		Owner:                n.Owner.Hex(),
		RegisteredAt:         uint64(n.RegisteredAt),
		Staked:               core.FormatAmount(n.Staked),
		Boost:                n.Boost.String(),
		LastInfluenceEventAt: uint64(n.LastInfluenceEventAt),
		EffectiveInfluence:   core.FormatAmount(influence),
	}
}

func cycleResponse(c *core.Cycle) CycleResponse {
	return CycleResponse{
		Number:         c.Number,
		StartedAt:      uint64(c.StartedAt),
		Pool:           core.FormatAmount(c.Pool),
		TotalInfluence: core.FormatAmount(c.TotalInfluence),
		Sealed:         c.Sealed,
		SealedAt:       uint64(c.SealedAt),
		Paid:           core.FormatAmount(c.Paid),
	}
}

func actionResponse(a *core.Action) ActionResponse {
	return ActionResponse{
		ID:            uint64(a.ID),
		ResourceCost:  core.FormatAmount(a.ResourceCost),
		InfluenceCost: core.FormatAmount(a.InfluenceCost),
		Step:          a.Step,
		Dynamic:       a.Dynamic,
	}
}

func signed(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, utils.Wrapf(utils.ErrInvalidParameter, "%q is not an address", s)
	}
	return common.HexToAddress(s), nil
}

func caller(r *http.Request) (common.Address, error) {
	v := r.Header.Get(CallerHeader)
	if v == "" {
		return common.Address{}, utils.Wrapf(utils.ErrUnauthorized, "missing %s header", CallerHeader)
	}
	return parseAddress(v)
}

func uintParam(r *http.Request, name string) (uint64, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, utils.Wrapf(utils.ErrInvalidParameter, "%s must be an unsigned integer", name)
	}
	return v, nil
}

func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return utils.Wrapf(utils.ErrInvalidParameter, "failed to read request body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return utils.Wrapf(utils.ErrInvalidParameter, "invalid JSON: %v", err)
	}
	return nil
}

func decodeAmount(r *http.Request) (*uint256.Int, error) {
	var req AmountRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, err
	}
	return core.ParseAmount(req.Amount)
}

// Read surface.

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": string(utils.StatusHealthy)})
		return
	}
	rep := s.health.Report()
	status := http.StatusOK
	if rep.Status == utils.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, rep)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	stats, err := s.net.Stats()
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	end, err := s.net.CycleEndTime()
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	admin, err := s.net.AdminAddress()
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, InfoResponse{
		Admin:        admin.Hex(),
		Cycle:        stats.Cycle,
		CycleEndsAt:  uint64(end),
		Nodes:        stats.Nodes,
		NetworkState: stats.NetworkState,
		Paused:       stats.Paused,
		Params:       s.params(),
		Timestamp:    uint64(s.net.Clock().Now().Unix()),
	})
}

func (s *Server) params() map[string]string {
	p := s.net.Params()
	out := make(map[string]string)
	for _, name := range network.ParameterNames() {
		v, _ := p.Get(name)
		out[name] = core.FormatAmount(v)
	}
	return out
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.params())
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	bal, err := s.net.Balance(addr)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"address": addr.Hex(), "balance": core.FormatAmount(bal)})
}

func (s *Server) handleOwner(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	id, ok, err := s.net.Lookup(addr)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if !ok {
		s.writeFailure(w, utils.Wrapf(utils.ErrUnknownNode, "%s owns no node", addr.Hex()))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"owner": addr.Hex(), "node": uint64(id)})
}

func (s *Server) handleEscrow(w http.ResponseWriter, r *http.Request) {
	rep, err := s.net.EscrowReport()
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, EscrowResponse{
		Balance:      core.FormatAmount(rep.Balance),
		OpenPool:     core.FormatAmount(rep.OpenPool),
		SealedUnpaid: core.FormatAmount(rep.SealedUnpaid),
		Liability:    core.FormatAmount(rep.Liability),
		Excess:       core.FormatAmount(rep.Excess),
		Solvent:      rep.Solvent,
	})
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	actions, err := s.net.Actions()
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	out := make([]ActionResponse, 0, len(actions))
	for _, a := range actions {
		out = append(out, actionResponse(a))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	var from uint64
	if v := r.URL.Query().Get("from"); v != "" {
		f, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			s.writeFailure(w, utils.Wrapf(utils.ErrInvalidParameter, "from must be an unsigned integer"))
			return
		}
		from = f
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	events, err := s.net.Audit(from, limit)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	out := make([]AuditResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, AuditResponse{
			ID:       ev.ID.String(),
			Seq:      ev.Seq,
			Kind:     string(ev.Kind),
			At:       uint64(ev.At),
			Actor:    ev.Actor.Hex(),
			Node:     uint64(ev.Node),
			Cycle:    ev.Cycle,
			Amount:   signed(ev.Amount),
			Detail:   ev.Detail,
			PrevHash: ev.PrevHash.Hex(),
			Hash:     ev.Hash.Hex(),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAuditHead(w http.ResponseWriter, r *http.Request) {
	head, err := s.net.AuditHead()
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	resp := AuditHeadResponse{Head: head.Hex(), Verified: true}
	if resp.Events, err = s.net.VerifyAudit(); err != nil {
		resp.Verified = false
		resp.Error = err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCurrentCycle(w http.ResponseWriter, r *http.Request) {
	num, err := s.net.CurrentCycle()
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeCycle(w, num)
}

func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	num, err := uintParam(r, "cycle")
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeCycle(w, num)
}

func (s *Server) writeCycle(w http.ResponseWriter, num uint64) {
	c, err := s.net.CycleInfo(num)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	resp := cycleResponse(c)
	if !c.Sealed {
		end, err := s.net.CycleEndTime()
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		resp.EndsAt = uint64(end)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	num, err := uintParam(r, "cycle")
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	v, err := s.net.Snapshot(num, core.NodeID(id))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	claimed, err := s.net.Claimed(num, core.NodeID(id))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"cycle":     num,
		"node":      id,
		"influence": core.FormatAmount(v),
		"claimed":   claimed,
	})
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	node, err := s.net.NodeInfo(core.NodeID(id))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	inf, err := s.net.EffectiveInfluence(core.NodeID(id))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nodeResponse(node, inf))
}

func (s *Server) handleInfluence(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	inf, err := s.net.EffectiveInfluence(core.NodeID(id))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"node": id, "influence": core.FormatAmount(inf)})
}

// Node surface. The caller is taken from CallerHeader.

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	owner, err := caller(r)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	id, err := s.net.Register(owner)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{"node": uint64(id), "owner": owner.Hex()})
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	s.handleStakeChange(w, r, s.net.Stake)
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	s.handleStakeChange(w, r, s.net.Unstake)
}

func (s *Server) handleStakeChange(w http.ResponseWriter, r *http.Request,
	op func(common.Address, core.NodeID, *uint256.Int) error) {
	from, err := caller(r)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	amount, err := decodeAmount(r)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if err := op(from, core.NodeID(id), amount); err != nil {
		s.writeFailure(w, err)
		return
	}
	node, err := s.net.NodeInfo(core.NodeID(id))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	inf, err := s.net.EffectiveInfluence(core.NodeID(id))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nodeResponse(node, inf))
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	paid, err := s.net.Claim(from, core.NodeID(id))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"node": id, "amount": core.FormatAmount(paid)})
}

func (s *Server) handlePerformAction(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	action, err := uintParam(r, "action")
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	state, err := s.net.PerformAction(from, core.NodeID(id), core.ActionID(action))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"node": id, "action": action, "network_state": state})
}

// Admin surface. The token middleware has already run; the caller must
// still be the stored admin.

func (s *Server) adminFor(w http.ResponseWriter, r *http.Request) (*network.Admin, bool) {
	from, err := caller(r)
	if err != nil {
		s.writeFailure(w, err)
		return nil, false
	}
	admin, err := s.net.Admin(from)
	if err != nil {
		s.writeFailure(w, err)
		return nil, false
	}
	return admin, true
}

func (s *Server) handleSetParameter(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.adminFor(w, r)
	if !ok {
		return
	}
	var req ValueRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeFailure(w, err)
		return
	}
	value, err := core.ParseAmount(req.Value)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if err := admin.SetParameter(chi.URLParam(r, "name"), value); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.params())
}

func (s *Server) handleAdvanceCycle(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.adminFor(w, r)
	if !ok {
		return
	}
	sealed, err := admin.AdvanceCycle()
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cycleResponse(sealed))
}

func (s *Server) handleBoost(w http.ResponseWriter, r *http.Request) {
	s.handleBoostChange(w, r, (*network.Admin).ApplyBoost)
}

func (s *Server) handlePenalty(w http.ResponseWriter, r *http.Request) {
	s.handleBoostChange(w, r, (*network.Admin).ApplyPenalty)
}

func (s *Server) handleBoostChange(w http.ResponseWriter, r *http.Request,
	op func(*network.Admin, core.NodeID, *uint256.Int) (*big.Int, error)) {
	admin, ok := s.adminFor(w, r)
	if !ok {
		return
	}
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	delta, err := decodeAmount(r)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	boost, err := op(admin, core.NodeID(id), delta)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"node": id, "boost": boost.String()})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.adminFor(w, r)
	if !ok {
		return
	}
	if err := admin.Pause(); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.adminFor(w, r)
	if !ok {
		return
	}
	if err := admin.Unpause(); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

func (s *Server) handleWithdrawEscrow(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.adminFor(w, r)
	if !ok {
		return
	}
	amount, err := decodeAmount(r)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if err := admin.WithdrawEscrow(amount); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.handleEscrow(w, r)
}

func (s *Server) handleTransferAdmin(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.adminFor(w, r)
	if !ok {
		return
	}
	var req TransferRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeFailure(w, err)
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if err := admin.TransferAdmin(to); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"admin": to.Hex()})
}

func (s *Server) handleRegisterAction(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.adminFor(w, r)
	if !ok {
		return
	}
	var req RegisterActionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeFailure(w, err)
		return
	}
	res, err := core.ParseAmount(req.ResourceCost)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	inf, err := core.ParseAmount(req.InfluenceCost)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	a := core.Action{ID: core.ActionID(req.ID), ResourceCost: res, InfluenceCost: inf, Step: req.Step}
	if err := admin.RegisterAction(a); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, actionResponse(&a))
}
