package audit

// DefaultChecklist returns the seed items for a new audit: the ISO/IEC
// 27001:2022 management clauses plus a starter set of Annex A controls.
// Items start pending; the facilitator walks them in order.
func DefaultChecklist() []Item {
	clauses := []struct{ ref, title, desc string }{
		{"4.1", "Understanding the organization and its context", "Determine external and internal issues relevant to the ISMS purpose and outcomes."},
		{"4.2", "Needs and expectations of interested parties", "Identify interested parties and their requirements relevant to the ISMS."},
		{"4.3", "Scope of the ISMS", "Determine and document the boundaries and applicability of the ISMS."},
		{"5.1", "Leadership and commitment", "Top management demonstrates leadership and commitment with respect to the ISMS."},
		{"5.2", "Information security policy", "Establish an information security policy appropriate to the organization."},
		{"6.1", "Actions to address risks and opportunities", "Plan actions to address information security risks and opportunities, including risk assessment and treatment."},
		{"6.2", "Information security objectives", "Establish measurable information security objectives and plans to achieve them."},
		{"7.2", "Competence", "Ensure persons doing work under the organization's control are competent."},
		{"8.1", "Operational planning and control", "Plan, implement and control processes needed to meet information security requirements."},
		{"9.2", "Internal audit", "Conduct internal audits at planned intervals to verify ISMS conformance."},
		{"10.1", "Continual improvement", "Continually improve the suitability, adequacy and effectiveness of the ISMS."},
	}
	annexes := []struct{ ref, title, desc string }{
		{"A.5.1", "Policies for information security", "Information security policy and topic-specific policies defined, approved and communicated."},
		{"A.5.9", "Inventory of information and other associated assets", "An inventory of information and associated assets, including owners, is developed and maintained."},
		{"A.5.15", "Access control", "Rules to control physical and logical access to information and assets are established."},
		{"A.5.23", "Information security for use of cloud services", "Processes for acquisition, use, management and exit from cloud services are established."},
		{"A.6.3", "Information security awareness, education and training", "Personnel receive appropriate awareness education and training."},
		{"A.8.2", "Privileged access rights", "The allocation and use of privileged access rights is restricted and managed."},
		{"A.8.7", "Protection against malware", "Protection against malware is implemented and supported by user awareness."},
		{"A.8.8", "Management of technical vulnerabilities", "Information about technical vulnerabilities is obtained and appropriate measures taken."},
		{"A.8.13", "Information backup", "Backup copies of information, software and systems are maintained and regularly tested."},
		{"A.8.16", "Monitoring activities", "Networks, systems and applications are monitored for anomalous behaviour."},
		{"A.8.24", "Use of cryptography", "Rules for the effective use of cryptography, including key management, are defined."},
		{"A.5.24", "Information security incident management planning", "Incident management processes, roles and responsibilities are planned and established."},
	}

	items := make([]Item, 0, len(clauses)+len(annexes))
	for _, c := range clauses {
		items = append(items, Item{
			Type:         TypeClause,
			ISOReference: c.ref,
			Title:        c.title,
			Description:  c.desc,
			Status:       StatusPending,
		})
	}
	for _, a := range annexes {
		items = append(items, Item{
			Type:         TypeAnnex,
			ISOReference: a.ref,
			Title:        a.title,
			Description:  a.desc,
			Status:       StatusPending,
		})
	}
	return items
}
