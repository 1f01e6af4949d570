package report

import "fmt"

// Template is a framework's control catalogue plus its title/scope
// rendering, grounded on the teacher's compliance/templates.Registry
// seedDefaults pattern, generalized from jurisdiction templates to
// compliance-framework templates per spec.md §4.K.
type Template struct {
	Framework   Framework
	Name        string
	ScopeFormat string // fmt verb consuming the requesting organization
	Controls    []Control
}

// TitleFor renders the report title for an organization.
func (t Template) TitleFor(org string) string {
	return fmt.Sprintf("%s Compliance Report — %s", t.Name, org)
}

// ScopeFor renders the report scope statement.
func (t Template) ScopeFor(org string) string {
	return fmt.Sprintf(t.ScopeFormat, org)
}

// Registry manages the set of available framework templates.
type Registry struct {
	templates map[Framework]Template
}

// NewRegistry returns a Registry seeded with the built-in frameworks.
func NewRegistry() *Registry {
	r := &Registry{templates: make(map[Framework]Template)}
	r.seedDefaults()
	return r
}

func (r *Registry) seedDefaults() {
	r.templates[FrameworkSOC2Type1] = Template{
		Framework:   FrameworkSOC2Type1,
		Name:        "SOC 2 Type I",
		ScopeFormat: "Design of controls relevant to security, availability, and confidentiality at %s, as of a point in time.",
		Controls: []Control{
			{ID: "CC1.1", Title: "Control environment", Description: "Management establishes structures, reporting lines, and appropriate authorities.", Required: true},
			{ID: "CC6.1", Title: "Logical access controls", Description: "The entity implements logical access security software and infrastructure to protect information assets.", Required: true},
			{ID: "CC6.6", Title: "Boundary protection and secrets", Description: "The entity restricts and monitors access to system boundaries and credential material.", Required: true},
			{ID: "CC7.2", Title: "Monitoring for anomalies", Description: "The entity monitors system components and the operation of controls to detect anomalies.", Required: true},
			{ID: "CC8.1", Title: "Change management", Description: "The entity authorizes, designs, develops, and implements changes to infrastructure and software.", Required: false},
		},
	}

	r.templates[FrameworkSOC2Type2] = Template{
		Framework:   FrameworkSOC2Type2,
		Name:        "SOC 2 Type II",
		ScopeFormat: "Operating effectiveness of controls relevant to security, availability, and confidentiality at %s, over a defined period.",
		Controls:    append(append([]Control{}, r.templates[FrameworkSOC2Type1].Controls...), Control{ID: "CC7.3", Title: "Incident response", Description: "The entity evaluates security events to determine whether they could represent a security incident.", Required: true}),
	}

	r.templates[FrameworkISO27001] = Template{
		Framework:   FrameworkISO27001,
		Name:        "ISO/IEC 27001",
		ScopeFormat: "Information security management system controls at %s, assessed against ISO/IEC 27001 Annex A.",
		Controls: []Control{
			{ID: "A.5.1", Title: "Policies for information security", Description: "Information security policy and topic-specific policies are defined and approved.", Required: true},
			{ID: "A.8.2", Title: "Privileged access rights", Description: "Allocation and use of privileged access rights is restricted and managed.", Required: true},
			{ID: "A.8.16", Title: "Monitoring activities", Description: "Networks, systems, and applications are monitored for anomalous behavior.", Required: true},
			{ID: "A.5.24", Title: "Incident management planning", Description: "The organization plans and prepares for managing information security incidents.", Required: true},
			{ID: "A.8.32", Title: "Change management", Description: "Changes to information processing facilities are subject to change management procedures.", Required: false},
		},
	}

	r.templates[FrameworkHIPAA] = Template{
		Framework:   FrameworkHIPAA,
		Name:        "HIPAA Security Rule",
		ScopeFormat: "Administrative, physical, and technical safeguards for electronic protected health information at %s.",
		Controls: []Control{
			{ID: "164.308(a)(1)", Title: "Security management process", Description: "Policies and procedures to prevent, detect, contain, and correct security violations.", Required: true},
			{ID: "164.308(a)(5)", Title: "Security awareness and training", Description: "Security awareness and training program for all members of the workforce.", Required: false},
			{ID: "164.312(a)(1)", Title: "Access control", Description: "Technical policies and procedures for electronic information systems that maintain ePHI.", Required: true},
			{ID: "164.312(b)", Title: "Audit controls", Description: "Hardware, software, and procedural mechanisms that record and examine activity.", Required: true},
		},
	}

	r.templates[FrameworkGDPR] = Template{
		Framework:   FrameworkGDPR,
		Name:        "GDPR",
		ScopeFormat: "Processing of personal data of EU data subjects by %s under GDPR Articles 5, 25, and 32.",
		Controls: []Control{
			{ID: "Art.5", Title: "Principles relating to processing", Description: "Personal data is processed lawfully, fairly, and transparently.", Required: true},
			{ID: "Art.25", Title: "Data protection by design and default", Description: "Technical and organizational measures implement data protection principles.", Required: true},
			{ID: "Art.30", Title: "Records of processing activities", Description: "A record of processing activities is maintained.", Required: true},
			{ID: "Art.32", Title: "Security of processing", Description: "Appropriate technical and organizational measures ensure a level of security appropriate to risk.", Required: true},
			{ID: "Art.33", Title: "Breach notification", Description: "Personal data breaches are notified to the supervisory authority without undue delay.", Required: false},
		},
	}

	r.templates[FrameworkPCIDSS] = Template{
		Framework:   FrameworkPCIDSS,
		Name:        "PCI DSS",
		ScopeFormat: "Cardholder data environment controls at %s assessed against PCI DSS v4.0 requirements.",
		Controls: []Control{
			{ID: "Req.7", Title: "Restrict access by business need to know", Description: "Access to system components and cardholder data is restricted.", Required: true},
			{ID: "Req.8", Title: "Identify users and authenticate access", Description: "Users and administrators are identified and authenticated.", Required: true},
			{ID: "Req.10", Title: "Log and monitor all access", Description: "All access to system components and cardholder data is logged and monitored.", Required: true},
			{ID: "Req.12", Title: "Security policy and programs", Description: "An information security policy supports the organization's security posture.", Required: false},
		},
	}
}

// Get retrieves a template by framework id.
func (r *Registry) Get(f Framework) (Template, error) {
	t, ok := r.templates[f]
	if !ok {
		return Template{}, fmt.Errorf("report: no template registered for framework %q", f)
	}
	return t, nil
}

// List returns every registered template.
func (r *Registry) List() []Template {
	out := make([]Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	return out
}

// Register adds or replaces a template. Generate does not look up
// framework=custom here; it builds that template from
// Request.CustomFramework.
func (r *Registry) Register(t Template) {
	r.templates[t.Framework] = t
}
