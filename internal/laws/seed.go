package laws

// baseLaws is the starting corpus. Jurisdiction "general" entries describe
// the common shape of US tenant law; they are informational, not legal
// advice, and jurisdiction-specific entries can be layered on via AddLaw.
var baseLaws = []LawReference{
	{
		ID:           "security_deposit_general",
		Category:     CategorySecurityDeposit,
		Title:        "Security Deposit Limits and Return",
		Summary:      "Landlords must return security deposits within a specified time after move-out, minus documented deductions.",
		Jurisdiction: "general",
		KeyPoints: []string{
			"Deposit must be returned within statutory timeframe",
			"Deductions must be itemized in writing",
			"Landlord must provide receipts for repairs",
			"Tenant may sue for wrongful withholding",
		},
		TenantRights: []string{
			"Right to itemized statement of deductions",
			"Right to return of deposit within time limit",
			"Right to sue for wrongful retention",
		},
		Keywords: []string{"security deposit", "deposit return", "damage deduction", "move out", "move-out inspection"},
	},
	{
		ID:           "habitability_general",
		Category:     CategoryHabitability,
		Title:        "Implied Warranty of Habitability",
		Summary:      "Landlords must maintain rental property in habitable condition with working essential services.",
		Jurisdiction: "general",
		KeyPoints: []string{
			"Heat, water, electricity must work",
			"No serious health or safety hazards",
			"Structural integrity maintained",
			"Tenant may withhold rent or repair-and-deduct",
		},
		TenantRights: []string{
			"Right to habitable living conditions",
			"Right to repair and deduct (with notice)",
			"Right to withhold rent for serious violations",
			"Right to terminate lease for uninhabitable conditions",
		},
		Keywords: []string{"habitability", "repairs", "maintenance", "heat", "water", "plumbing", "electrical", "mold", "pest", "infestation"},
	},
	{
		ID:           "eviction_notice_general",
		Category:     CategoryEviction,
		Title:        "Eviction Notice Requirements",
		Summary:      "Landlords must follow proper legal procedures and provide adequate notice before eviction.",
		Jurisdiction: "general",
		KeyPoints: []string{
			"Written notice required before filing",
			"Notice period varies by reason",
			"Self-help eviction is illegal",
			"Tenant has right to contest in court",
		},
		TenantRights: []string{
			"Right to proper written notice",
			"Right to cure violations if applicable",
			"Right to court hearing",
			"Protection from illegal lockouts",
		},
		TimeLimits: map[string]string{
			"nonpayment_notice":    "3-14 days typically",
			"lease_violation_cure": "varies by jurisdiction",
			"no_cause_notice":      "30-60 days typically",
		},
		Keywords: []string{"eviction", "notice to quit", "pay or quit", "vacate", "termination", "unlawful detainer"},
	},
	{
		ID:           "retaliation_general",
		Category:     CategoryRetaliation,
		Title:        "Protection Against Retaliation",
		Summary:      "Landlords cannot retaliate against tenants for exercising legal rights.",
		Jurisdiction: "general",
		KeyPoints: []string{
			"Protected activities include complaints to authorities",
			"Retaliation presumed if action within 90 days",
			"Tenant may have defense to eviction",
			"May recover damages for retaliation",
		},
		TenantRights: []string{
			"Right to complain about conditions",
			"Right to contact housing authorities",
			"Right to join tenant organizations",
			"Right to assert legal rights",
		},
		Keywords: []string{"retaliation", "retaliatory eviction", "complaint", "housing authority", "code enforcement"},
	},
	{
		ID:           "entry_access_general",
		Category:     CategoryEntryAccess,
		Title:        "Landlord Entry and Access",
		Summary:      "Landlords must provide reasonable notice before entering rental unit.",
		Jurisdiction: "general",
		KeyPoints: []string{
			"24-48 hours notice typically required",
			"Entry only for legitimate purposes",
			"Emergency entry exception",
			"Tenant may refuse unreasonable entry",
		},
		TenantRights: []string{
			"Right to advance notice of entry",
			"Right to quiet enjoyment",
			"Right to refuse entry without notice",
		},
		TimeLimits: map[string]string{"notice_for_entry": "24-48 hours typical"},
		Keywords:   []string{"entry", "access", "notice", "privacy", "inspection", "showing", "landlord entry"},
	},
	{
		ID:           "rent_increase_general",
		Category:     CategoryRentPayment,
		Title:        "Rent Increase Requirements",
		Summary:      "Rent increases must follow proper notice procedures and lease terms.",
		Jurisdiction: "general",
		KeyPoints: []string{
			"Cannot increase during lease term without clause",
			"Written notice required for increase",
			"Notice period varies by jurisdiction",
		},
		TenantRights: []string{
			"Right to notice of rent increase",
			"Right to refuse increase and terminate",
			"Protection from increase during lease",
		},
		TimeLimits: map[string]string{"rent_increase_notice": "30-60 days typical"},
		Keywords:   []string{"rent increase", "rent raise", "rent hike", "rent change"},
	},
	{
		ID:           "lease_termination_general",
		Category:     CategoryLeaseTermination,
		Title:        "Lease Termination and Renewal",
		Summary:      "Rules for ending tenancy and lease renewal/non-renewal.",
		Jurisdiction: "general",
		KeyPoints: []string{
			"Written notice required to end month-to-month",
			"Fixed-term leases end on their own date",
			"Early termination may require cause or penalty",
			"Some jurisdictions require renewal notice",
		},
		TenantRights: []string{
			"Right to notice of non-renewal",
			"Right to terminate with proper notice",
			"Protection from mid-lease termination without cause",
		},
		TimeLimits: map[string]string{
			"month_to_month_notice": "30 days typical",
			"non_renewal_notice":    "varies",
		},
		Keywords: []string{"termination", "end lease", "move out", "non-renewal", "renewal", "month-to-month"},
	},
}
