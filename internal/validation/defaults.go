package validation

// accountStatuses are the states of users and organizations.
var accountStatuses = []string{"active", "disabled"}

// DefaultRules returns the built-in rules for the business collections.
func DefaultRules() *RuleSet {
	return NewRuleSet(map[string]CollectionRules{
		"users": {
			Required: []string{"username", "password", "orgId"},
			Fields: map[string]FieldRule{
				"username":     {Type: TypeString, MinLen: Len(3), MaxLen: Len(50)},
				"password":     {Type: TypeString, MinLen: Len(6), MaxLen: Len(100)},
				"orgId":        {Type: TypeString},
				"displayName":  {Type: TypeString, MaxLen: Len(100)},
				"roleId":       {Type: TypeString},
				"isSuperAdmin": {Type: TypeBool},
				"status":       {Type: TypeString, OneOf: accountStatuses},
			},
		},
		"organizations": {
			Required: []string{"code", "name"},
			Fields: map[string]FieldRule{
				"code":   {Type: TypeString, MinLen: Len(2), MaxLen: Len(50)},
				"name":   {Type: TypeString, MinLen: Len(1), MaxLen: Len(200)},
				"status": {Type: TypeString, OneOf: accountStatuses},
			},
		},
		"roles": {
			Required: []string{"name", "orgId"},
			Fields: map[string]FieldRule{
				"name":        {Type: TypeString, MinLen: Len(1), MaxLen: Len(100)},
				"permissions": {Type: TypeArray},
			},
		},
		"factories": {
			Required: []string{"name", "orgId"},
			Fields: map[string]FieldRule{
				"name": {Type: TypeString, MinLen: Len(1), MaxLen: Len(200)},
			},
		},
		"products": {
			Required: []string{"name", "orgId"},
			Fields: map[string]FieldRule{
				"name":  {Type: TypeString, MinLen: Len(1), MaxLen: Len(200)},
				"price": {Type: TypeNumber, Min: Num(0)},
			},
		},
		"orders": {
			Required: []string{"orgId"},
			Fields: map[string]FieldRule{
				"quantity": {Type: TypeNumber, Min: Num(0)},
				"status":   {Type: TypeString},
			},
		},
	})
}
