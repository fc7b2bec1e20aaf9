package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionExamsRead allows viewing exam lists and details.
	PermissionExamsRead Permission = "exams:read"

	// PermissionExamsWriteOwn allows creating exams and editing own exams.
	PermissionExamsWriteOwn Permission = "exams:write_own"

	// PermissionExamsApprove allows approving exams or returning them for review.
	PermissionExamsApprove Permission = "exams:approve"

	// PermissionExamsTake allows starting and submitting exam attempts.
	PermissionExamsTake Permission = "exams:take"

	// PermissionSubmissionsRead allows viewing submissions of an exam.
	PermissionSubmissionsRead Permission = "submissions:read"

	// PermissionSubmissionsGrade allows setting theory scores.
	PermissionSubmissionsGrade Permission = "submissions:grade"

	// PermissionStudentsResetSession allows resetting a student's login session.
	PermissionStudentsResetSession Permission = "students:reset_session"

	// PermissionSchoolsReadAll allows reading across every school.
	PermissionSchoolsReadAll Permission = "schools:read_all"
)

// rolePermissions is the static grant table. Roles are fixed, so there is no
// role administration surface.
var rolePermissions = map[Role][]Permission{
	RoleStudent: {
		PermissionExamsTake,
	},
	RoleTeacher: {
		PermissionExamsRead,
		PermissionExamsWriteOwn,
		PermissionSubmissionsRead,
		PermissionSubmissionsGrade,
	},
	RoleAdmin: {
		PermissionExamsRead,
		PermissionExamsApprove,
		PermissionSubmissionsRead,
		PermissionSubmissionsGrade,
		PermissionStudentsResetSession,
	},
	RoleSuperAdmin: {
		PermissionExamsRead,
		PermissionExamsApprove,
		PermissionSubmissionsRead,
		PermissionStudentsResetSession,
		PermissionSchoolsReadAll,
	},
}

// PermissionsFor returns the permission codes granted to r.
func PermissionsFor(r Role) []string {
	perms := rolePermissions[r]
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

// HasPermission reports whether r is granted p.
func HasPermission(r Role, p Permission) bool {
	for _, granted := range rolePermissions[r] {
		if granted == p {
			return true
		}
	}
	return false
}
