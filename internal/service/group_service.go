package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/settleup/internal/ledger"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/pkg/api"
	"github.com/mmynk/settleup/pkg/api/apiconnect"
)

// GroupService implements the Connect GroupService
type GroupService struct {
	engine *ledger.Engine
}

var _ apiconnect.GroupServiceHandler = (*GroupService)(nil)

// NewGroupService creates a new GroupService backed by the ledger engine.
func NewGroupService(engine *ledger.Engine) *GroupService {
	return &GroupService{engine: engine}
}

// CreateGroup creates a new group with its initial members.
func (s *GroupService) CreateGroup(ctx context.Context, req *connect.Request[api.CreateGroupRequest]) (*connect.Response[api.CreateGroupResponse], error) {
	slog.Info("CreateGroup request received",
		"name", req.Msg.Name,
		"currency", req.Msg.Currency,
		"members_count", len(req.Msg.Members),
	)

	group, err := s.engine.CreateGroup(ctx, req.Msg.Name, req.Msg.Currency, toModelMembers(req.Msg.Members))
	if err != nil {
		return nil, toConnectError("CreateGroup", err)
	}

	return connect.NewResponse(&api.CreateGroupResponse{Group: toAPIGroup(group)}), nil
}

// GetGroup retrieves a group by ID.
func (s *GroupService) GetGroup(ctx context.Context, req *connect.Request[api.GetGroupRequest]) (*connect.Response[api.GetGroupResponse], error) {
	slog.Info("GetGroup request received", "group_id", req.Msg.GroupID)

	group, err := s.engine.GetGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError("GetGroup", err)
	}

	slog.Info("GetGroup successful", "group_id", group.ID, "name", group.Name)

	return connect.NewResponse(&api.GetGroupResponse{Group: toAPIGroup(group)}), nil
}

// ListGroups retrieves all groups.
func (s *GroupService) ListGroups(ctx context.Context, req *connect.Request[api.ListGroupsRequest]) (*connect.Response[api.ListGroupsResponse], error) {
	slog.Info("ListGroups request received")

	groups, err := s.engine.ListGroups(ctx)
	if err != nil {
		return nil, toConnectError("ListGroups", err)
	}

	out := make([]api.Group, len(groups))
	for i, group := range groups {
		out[i] = toAPIGroup(group)
	}

	slog.Info("ListGroups successful", "count", len(groups))

	return connect.NewResponse(&api.ListGroupsResponse{Groups: out}), nil
}

// AddMember adds a member with a zero balance.
func (s *GroupService) AddMember(ctx context.Context, req *connect.Request[api.AddMemberRequest]) (*connect.Response[api.AddMemberResponse], error) {
	slog.Info("AddMember request received",
		"group_id", req.Msg.GroupID,
		"name", req.Msg.Member.Name,
	)

	member, err := s.engine.AddMember(ctx, req.Msg.GroupID, models.Member{
		ID:   req.Msg.Member.ID,
		Name: req.Msg.Member.Name,
	})
	if err != nil {
		return nil, toConnectError("AddMember", err)
	}

	return connect.NewResponse(&api.AddMemberResponse{
		Member: api.Member{ID: member.ID, Name: member.Name},
	}), nil
}

// RemoveMember removes a member who is settled up.
func (s *GroupService) RemoveMember(ctx context.Context, req *connect.Request[api.RemoveMemberRequest]) (*connect.Response[api.RemoveMemberResponse], error) {
	slog.Info("RemoveMember request received",
		"group_id", req.Msg.GroupID,
		"member_id", req.Msg.MemberID,
	)

	if err := s.engine.RemoveMember(ctx, req.Msg.GroupID, req.Msg.MemberID); err != nil {
		return nil, toConnectError("RemoveMember", err)
	}

	return connect.NewResponse(&api.RemoveMemberResponse{}), nil
}
