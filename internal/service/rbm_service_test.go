package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrix-platform/quantrix-rbm/internal/collab"
	"github.com/quantrix-platform/quantrix-rbm/internal/config"
	"github.com/quantrix-platform/quantrix-rbm/internal/model"
)

// fakeResolver 权限服务桩
type fakeResolver struct {
	perms *collab.Permissions
	err   error
}

func (f *fakeResolver) PermissionsFor(ctx context.Context, actorID string) (*collab.Permissions, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.perms, nil
}

// newPreconditionService 只覆盖落库前短路路径的服务实例，仓储留空
func newPreconditionService(resolver collab.PermissionResolver) *RBMService {
	cfg := config.Default()
	return NewRBMService(nil, nil, nil, nil, resolver, cfg)
}

func TestRBMService_RequestElevation_PermissionDenied(t *testing.T) {
	svc := newPreconditionService(&fakeResolver{
		perms: &collab.Permissions{CanActivateRBM: false, CanViewRBM: true},
	})

	resp, err := svc.RequestElevation(context.Background(), &ElevationRequest{
		CampaignID: "camp-1",
		Multiplier: 2.0,
		ActorID:    "analyst-1",
	})
	require.NoError(t, err)

	// 拒绝是正常响应而不是错误
	assert.True(t, resp.Success)
	assert.False(t, resp.Approved)
	assert.Equal(t, RejectCodePermissionDenied, resp.RejectCode)
	assert.Equal(t, 1.0, resp.ApprovedMultiplier)
}

func TestRBMService_RequestElevation_PermissionLookupErrorDenies(t *testing.T) {
	// 权限服务不可达按拒绝处理，绝不放行
	svc := newPreconditionService(&fakeResolver{err: errors.New("redis down")})

	resp, err := svc.RequestElevation(context.Background(), &ElevationRequest{
		CampaignID: "camp-1",
		Multiplier: 2.0,
		ActorID:    "op-1",
	})
	require.NoError(t, err)
	assert.False(t, resp.Approved)
	assert.Equal(t, RejectCodePermissionDenied, resp.RejectCode)
}

func TestRBMService_RequestElevation_MultiplierOutOfBounds(t *testing.T) {
	// ActorID 为空走系统通道，跳过权限校验直达边界校验
	svc := newPreconditionService(&fakeResolver{})

	for _, multiplier := range []float64{0.5, 5.5, -1, 0} {
		resp, err := svc.RequestElevation(context.Background(), &ElevationRequest{
			CampaignID: "camp-1",
			Multiplier: multiplier,
		})
		require.NoError(t, err, "multiplier %v", multiplier)
		assert.False(t, resp.Approved)
		assert.Equal(t, RejectCodeInvalidMultiplier, resp.RejectCode, "multiplier %v", multiplier)
		assert.Contains(t, resp.Reason, "outside allowed range")
	}
}

func TestRBMService_Config(t *testing.T) {
	svc := newPreconditionService(&fakeResolver{})

	sc := svc.Config()
	assert.Equal(t, 5.0, sc.SystemMax)
	assert.Equal(t, 1.0, sc.SystemMin)
	assert.Equal(t, 1.0, sc.Default)
	assert.Equal(t, 3.0, sc.PlanLimits["pro"])

	// 返回的是副本，调用方改动不能污染服务配置
	sc.PlanLimits["pro"] = 99
	assert.Equal(t, 3.0, svc.Config().PlanLimits["pro"])
}

func TestApplyDecision_ApproveWritesRequestApprovePair(t *testing.T) {
	campaign := elevatedCampaign()
	campaign.RBMApproved = 1.0
	campaign.RBMStatus = model.RBMStatusInactive
	campaign.RBMReducedAt = 12345
	campaign.RBMReducedReason = "old reduction"

	req := &ElevationRequest{CampaignID: campaign.ID, Multiplier: 3.0, ActorID: "owner-1"}
	d := &decision{approved: true, reason: "quality gate passed"}
	now := int64(1756684800000)

	events := applyDecision(campaign, req, model.RBMActorUser, d, `{"k":"v"}`, now)

	// 恰好 REQUEST + APPROVE 双事件
	require.Len(t, events, 2)
	assert.Equal(t, model.RBMEventTypeRequest, events[0].Type)
	assert.Equal(t, 1.0, events[0].PrevValue)
	assert.Equal(t, 3.0, events[0].NewValue)
	assert.Equal(t, model.RBMEventTypeApprove, events[1].Type)
	assert.Equal(t, 3.0, events[1].NewValue)
	assert.Equal(t, `{"k":"v"}`, events[1].Evidence)
	assert.True(t, events[1].IsDecision())

	// 批准即生效，残留的缩减痕迹被清空
	assert.True(t, d.approved)
	assert.Equal(t, 3.0, campaign.RBMApproved)
	assert.Equal(t, model.RBMStatusActive, campaign.RBMStatus)
	assert.Equal(t, now, campaign.RBMApprovedAt)
	assert.Zero(t, campaign.RBMReducedAt)
	assert.Empty(t, campaign.RBMReducedReason)
}

func TestApplyDecision_DenyResetsToFloor(t *testing.T) {
	campaign := elevatedCampaign()
	campaign.RBMApproved = 2.0

	req := &ElevationRequest{CampaignID: campaign.ID, Multiplier: 4.0, ActorID: "owner-1"}
	d := &decision{approved: false, reason: planLimitReason(4.0, 3.0), rejectCode: RejectCodePlanLimitExceeded}

	events := applyDecision(campaign, req, model.RBMActorUser, d, "", 1756684800000)

	require.Len(t, events, 2)
	assert.Equal(t, model.RBMEventTypeRequest, events[0].Type)
	assert.Equal(t, model.RBMEventTypeDeny, events[1].Type)
	assert.Equal(t, 2.0, events[1].PrevValue)
	assert.Equal(t, 1.0, events[1].NewValue)
	assert.True(t, events[1].IsDecision())

	// 拒绝复位到 1.0 而不是保留先前的提升
	assert.False(t, d.approved)
	assert.Equal(t, 1.0, campaign.RBMApproved)
	assert.Equal(t, model.RBMStatusInactive, campaign.RBMStatus)
	assert.Equal(t, 4.0, campaign.RBMRequested)
}

func TestApplyDecision_ConcurrentStopDowngradesToDeny(t *testing.T) {
	// 资格校验和行锁之间 campaign 被并发终止: 锁内重校验把批准降级为拒绝
	campaign := elevatedCampaign()
	campaign.Status = model.CampaignStatusStopped
	campaign.RBMApproved = 1.0
	campaign.RBMStatus = model.RBMStatusInactive

	req := &ElevationRequest{CampaignID: campaign.ID, Multiplier: 3.0, ActorID: "owner-1"}
	d := &decision{approved: true, reason: "quality gate passed"}

	events := applyDecision(campaign, req, model.RBMActorUser, d, "", 1756684800000)

	assert.False(t, d.approved)
	assert.Equal(t, RejectCodeCampaignNotEligible, d.rejectCode)
	assert.Contains(t, d.reason, "no longer eligible")

	require.Len(t, events, 2)
	assert.Equal(t, model.RBMEventTypeDeny, events[1].Type)
	assert.Equal(t, 1.0, campaign.RBMApproved)
	assert.Equal(t, model.RBMStatusInactive, campaign.RBMStatus)
	assert.Zero(t, campaign.RBMApprovedAt)
}

func TestPlanLimitReason(t *testing.T) {
	assert.Equal(t, "requested multiplier 4x exceeds plan limit of 3x", planLimitReason(4.0, 3.0))
	assert.Equal(t, "requested multiplier 2.5x exceeds plan limit of 1.5x", planLimitReason(2.5, 1.5))
}

func TestFormatMultiplier(t *testing.T) {
	assert.Equal(t, "3", formatMultiplier(3.0))
	assert.Equal(t, "1.5", formatMultiplier(1.5))
	assert.Equal(t, "2.75", formatMultiplier(2.75))
	assert.Equal(t, "1", formatMultiplier(1))
}
