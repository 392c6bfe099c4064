package authz

import "fmt"

// 预置角色
const (
	RoleAdmin            = "admin"
	RoleAffiliateManager = "affiliate_manager"
	RoleCatalogManager   = "catalog_manager"
)

// RoleSeed 预置角色定义
type RoleSeed struct {
	Role     string
	Inherits []string
	Policies []Policy
}

// BuiltinRoleSeeds 系统预置角色矩阵
func BuiltinRoleSeeds() []RoleSeed {
	return []RoleSeed{
		{
			Role: RoleAffiliateManager,
			Policies: []Policy{
				{Object: "/affiliate/admin/*", Action: "*"},
			},
		},
		{
			Role: RoleCatalogManager,
			Policies: []Policy{
				{Object: "/plugin/createplugin", Action: "POST"},
			},
		},
		{
			Role:     RoleAdmin,
			Inherits: []string{RoleAffiliateManager, RoleCatalogManager},
			Policies: []Policy{
				{Object: "/admin/*", Action: "*"},
			},
		},
	}
}

// BootstrapBuiltinRoles 初始化预置角色与默认策略
func (s *Service) BootstrapBuiltinRoles() error {
	if s == nil || s.enforcer == nil {
		return fmt.Errorf("authz service unavailable")
	}

	for _, seed := range BuiltinRoleSeeds() {
		role, err := s.EnsureRole(seed.Role)
		if err != nil {
			return err
		}
		for _, parent := range seed.Inherits {
			parentRole, err := s.EnsureRole(parent)
			if err != nil {
				return err
			}
			if _, err := s.enforcer.AddNamedGroupingPolicy("g", role, parentRole); err != nil {
				return fmt.Errorf("link role inheritance failed: %w", err)
			}
		}
		for _, policy := range seed.Policies {
			action := NormalizeAction(policy.Action)
			if action == "" {
				return fmt.Errorf("builtin policy action is required")
			}
			if _, err := s.enforcer.AddPolicy(role, NormalizeObject(policy.Object), action); err != nil {
				return fmt.Errorf("add builtin policy failed: %w", err)
			}
		}
	}
	return nil
}

// EnsureAdminUser 为管理员用户授予 admin 角色（已有角色时不覆盖）
func (s *Service) EnsureAdminUser(userID uint) error {
	roles, err := s.GetUserRoles(userID)
	if err != nil {
		return err
	}
	if len(roles) > 0 {
		return nil
	}
	return s.SetUserRoles(userID, []string{RoleAdmin})
}
