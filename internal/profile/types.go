package profile

// Profile is the business domain a deployment looks for in procurement
// notices. Include and Exclude are the vocabulary shared by the relevance
// classifier and the filter extractor.
type Profile struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Include     []string `json:"include"`
	Exclude     []string `json:"exclude"`
}

// Profile keys in the domain_profile table. List values are JSON arrays.
const (
	KeyName        = "profile.name"
	KeyDescription = "profile.description"
	KeyInclude     = "profile.include"
	KeyExclude     = "profile.exclude"
)

// Default is the facilities-services profile used when nothing is stored.
func Default() Profile {
	return Profile{
		Name: "Facilities",
		Description: "Empresa de facilities que presta serviços continuados com dedicação de mão de obra " +
			"para órgãos públicos: limpeza, conservação e manutenção predial, apoio operacional e administrativo.",
		Include: []string{
			"limpeza", "conservação", "higienização", "asseio",
			"manutenção predial", "zeladoria", "jardinagem", "roçada",
			"copeiragem", "recepção", "portaria", "controle de acesso",
			"apoio administrativo", "mão de obra terceirizada", "serviços continuados",
			"dedetização", "controle de pragas", "limpeza hospitalar",
		},
		Exclude: []string{
			"obras de engenharia", "construção", "pavimentação", "reforma estrutural",
			"medicamentos", "material hospitalar", "equipamentos médicos",
			"gêneros alimentícios", "merenda escolar",
			"veículos", "combustível", "peças automotivas",
			"software", "licenças de software", "equipamentos de informática",
			"material de expediente", "mobiliário", "uniformes",
			"shows", "eventos artísticos", "consultoria jurídica",
		},
	}
}
