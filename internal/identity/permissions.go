package identity

// Permission names, one per workflow action.
const (
	PermPreview   = "needslist:preview"
	PermDraft     = "needslist:draft"
	PermEditLines = "needslist:edit_lines"
	PermComment   = "needslist:review_comment"
	PermSubmit    = "needslist:submit"
	PermReview    = "needslist:review"  // return, reject, escalate, reminder
	PermApprove   = "needslist:approve" // role-gated further by the tier resolver
	PermExecute   = "needslist:execute" // preparation, dispatch, receipt, completion
	PermCancel    = "needslist:cancel"
	PermGenerate  = "needslist:generate_records"
)

// rolePermissions maps canonical roles to their granted permissions.
var rolePermissions = map[string][]string{
	RoleRequester: {
		PermPreview, PermDraft, PermEditLines, PermSubmit,
	},
	RoleLogisticsOfficer: {
		PermPreview, PermDraft, PermEditLines, PermSubmit, PermGenerate,
	},
	RoleWarehouseOp: {
		PermPreview, PermExecute,
	},
	RoleLogisticsManager: {
		PermPreview, PermDraft, PermEditLines, PermSubmit, PermComment,
		PermReview, PermApprove, PermExecute, PermCancel, PermGenerate,
	},
	RoleDirector: {
		PermPreview, PermComment, PermReview, PermApprove, PermCancel,
	},
	RoleSeniorDirector: {
		PermPreview, PermComment, PermReview, PermApprove, PermCancel,
	},
	RoleAdmin: {
		PermPreview, PermDraft, PermEditLines, PermSubmit, PermComment,
		PermReview, PermApprove, PermExecute, PermCancel, PermGenerate,
	},
}

// Permissions resolves the permission set for an actor's roles, expanding
// spellings through the alias table first.
func Permissions(aliases *AliasTable, roles []string) RoleSet {
	perms := RoleSet{}
	expanded := aliases.Expand(roles...)
	for role := range expanded {
		for _, p := range rolePermissions[role] {
			perms.Add(p)
		}
	}
	return perms
}

// HasPermission reports whether roles grant the permission.
func HasPermission(aliases *AliasTable, roles []string, permission string) bool {
	return Permissions(aliases, roles).Has(permission)
}
