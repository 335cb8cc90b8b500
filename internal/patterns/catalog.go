package patterns

// Categories of the built-in catalog, in declaration order.
const (
	CategoryBuildingCodes      = "building_codes"
	CategoryMaterialSpecs      = "material_specs"
	CategoryStructuralElements = "structural_elements"
	CategoryLoadRequirements   = "load_requirements"
	CategoryDimensions         = "dimensions"
	CategoryFireProtection     = "fire_protection"
	CategoryProjectInfo        = "project_info"
	CategoryAbbreviations      = "abbreviations"
)

type ruleDef struct {
	id       string
	category string
	pattern  string
	weight   float64
	context  []string
}

// catalog is the built-in rule table for engineering and construction drawings.
// Values are the full match; rules avoid capture-only semantics.
var catalog = []ruleDef{
	// building codes and referenced standards
	{"ibc", CategoryBuildingCodes, `(?i)\b(?:IBC|International Building Code)\s*\d{4}\b`, 0.95, nil},
	{"state_building_code", CategoryBuildingCodes, `\b(?:OBC|CBC|FBC|BCNYS|NYCBC|EBC)\s*\d{4}\b`, 0.9, nil},
	{"state_building_code_name", CategoryBuildingCodes, `(?i)\b(?:Ohio|California|Florida|Chicago|Epcot|New York City) Building Code\s*\d{4}\b`, 0.9, nil},
	{"msbc", CategoryBuildingCodes, `(?i)\b(?:MSBC|Massachusetts State Building Code)\s*\d+(?:th|st|nd|rd)\s*edition\b`, 0.9, nil},
	{"asce7", CategoryBuildingCodes, `(?i)\bASCE\s*7[-\s]*\d{2}\b`, 0.95, nil},
	{"aisi", CategoryBuildingCodes, `\bAISI\s*[A-Z]?\d{3,4}(?:-\d{2})?\b`, 0.85, nil},
	{"astm", CategoryBuildingCodes, `\bASTM\s*[A-Z]\s*\d+(?:[/-][A-Z]?\d+)*\b`, 0.9, nil},
	{"aws", CategoryBuildingCodes, `\bAWS\s*D\d+\.\d+\b`, 0.9, nil},
	{"ufc", CategoryBuildingCodes, `\bUFC\s*4-010-0[12]\b`, 0.9, nil},
	{"dod", CategoryBuildingCodes, `(?i)\bDoD\s*(?:Minimum\s*)?(?:Antiterrorism|Standards)\b`, 0.8, nil},

	// materials
	{"steel_grade", CategoryMaterialSpecs, `(?i)\b(?:A36|A992|A572|A500|A1003)(?:\s+(?:steel|grade\s*\d+))?\b`, 0.9, nil},
	{"grade", CategoryMaterialSpecs, `(?i)\bgrade\s*\d+\b`, 0.85, nil},
	{"gauge", CategoryMaterialSpecs, `(?i)\b\d+\s*(?:ga|gauge|gage)\b`, 0.85, nil},
	{"mils", CategoryMaterialSpecs, `(?i)\b\d+\s*mils?\b`, 0.8, nil},
	{"thickness", CategoryMaterialSpecs, `(?i)\b\d+(?:\.\d+)?\s*(?:inch|in\.?|")\s*thick\b`, 0.8, nil},
	{"strength", CategoryMaterialSpecs, `(?i)\b(?:yield|tensile)\s*strength[:\s]*\d+(?:\.\d+)?\s*(?:ksi|MPa)\b`, 0.9, nil},
	{"ksi_yield", CategoryMaterialSpecs, `(?i)\b\d+\s*ksi\s*(?:yield|material)\b`, 0.85, nil},
	{"concrete_strength", CategoryMaterialSpecs, `(?i)\b\d+\s*psi\s*(?:concrete|compressive)\b`, 0.85, nil},
	{"concrete_weight", CategoryMaterialSpecs, `(?i)\b(?:normal|light)\s*weight\s*concrete\b`, 0.75, nil},
	{"deck", CategoryMaterialSpecs, `(?i)\b(?:roof|floor)\s*deck[:\s]*\d+(?:\.\d+)?["\s]*x\s*\d+\s*ga\b`, 0.85, nil},
	{"deck_profile", CategoryMaterialSpecs, `(?i)\b\d+-\d+/\d+["\s]*x\s*\d+\s*ga\b`, 0.85, nil},
	{"galvanized", CategoryMaterialSpecs, `(?i)\b(?:hot-dip\s*)?galvanized\b`, 0.7, nil},
	{"zinc_coating", CategoryMaterialSpecs, `(?i)\bzinc\s*coating\s*G\d+\b`, 0.8, nil},

	// structural members
	{"wide_flange", CategoryStructuralElements, `\bW\s*\d+\s*[xX]\s*\d+(?:\.\d+)?\b`, 0.9, nil},
	{"angle", CategoryStructuralElements, `\bL\s*\d+(?:\.\d+)?\s*[xX]\s*\d+(?:\.\d+)?\s*[xX]\s*\d+/\d+`, 0.9, nil},
	{"channel", CategoryStructuralElements, `\bC\s*\d+\s*[xX]\s*\d+(?:\.\d+)?\b`, 0.85, nil},
	{"hss", CategoryStructuralElements, `\bHSS\s*\d+(?:\.\d+)?\s*[xX]\s*\d+(?:\.\d+)?\s*[xX]\s*\d+/\d+`, 0.9, nil},
	{"cold_formed", CategoryStructuralElements, `(?i)\b(?:CFMF|CFF|cold-formed\s*(?:metal\s*)?framing)\b`, 0.8, nil},
	{"steel_system", CategoryStructuralElements, `(?i)\b(?:structural\s*steel|steel\s*(?:decking|deck|truss))\b`, 0.75, nil},
	{"member", CategoryStructuralElements, `(?i)\b(?:studs?|tracks?|joists?|rafters?|purlins?|girts?|headers?|sills?|jambs?|lintels?)\b`, 0.6, nil},
	{"lateral", CategoryStructuralElements, `(?i)\b(?:shear\s*walls?|shearwalls?|x-bracing)\b`, 0.75, nil},
	{"electrode", CategoryStructuralElements, `\bE\d{2}[0-9X]{1,2}\b`, 0.7, nil},

	// loads
	{"load_units", CategoryLoadRequirements, `(?i)\b(?:PSF\s+POUNDS\s+PER\s+SQUARE\s+FOOT|PSI\s+POUNDS\s+PER\s+SQUARE\s+INCH|KSI\s+KIPS\s+PER\s+SQUARE\s+INCH|KLF\s+KIPS\s+PER\s+LINEAR\s+FOOT|KSF\s+KIPS\s+PER\s+SQUARE\s+FOOT)\b`, 0.7, nil},
	{"typed_load", CategoryLoadRequirements, `(?i)\b(?:dead|live|wind|snow|seismic|roof)\s*loads?[:\s]*\d+(?:\.\d+)?\s*psf\b`, 0.95, nil},
	{"pressure", CategoryLoadRequirements, `(?i)\b\d+(?:\.\d+)?\s*(?:psf|kPa)\b`, 0.8, nil},
	{"force", CategoryLoadRequirements, `(?i)\b\d+(?:\.\d+)?\s*(?:lbs?|kips?|kN|plf|klf)\b`, 0.7, []string{"load", "capacity", "reaction", "shear", "moment"}},
	{"wind_speed", CategoryLoadRequirements, `(?i)\bbasic\s*wind\s*speed[:\s]*\d+\s*mph\b`, 0.95, nil},
	{"speed", CategoryLoadRequirements, `(?i)\b\d+\s*mph\b`, 0.7, []string{"wind"}},
	{"deflection", CategoryLoadRequirements, `(?i)\bL\s*/\s*(?:240|360|480|600|720)\b`, 0.85, nil},
	{"deflection_criteria", CategoryLoadRequirements, `(?i)\b(?:wall|roof|floor)\s*deflection[:\s]*L\s*/\s*\d+\b`, 0.9, nil},

	// dimensions
	{"feet_inches", CategoryDimensions, `\b\d+'-\s*\d+(?:\.\d+)?"`, 0.9, nil},
	{"feet_by_feet", CategoryDimensions, `\b\d+(?:\.\d+)?'\s*(?:x|\*|by)\s*\d+(?:\.\d+)?'`, 0.85, nil},
	{"area", CategoryDimensions, `(?i)\b\d+(?:,\d{3})*(?:\.\d+)?\s*(?:SF|sq\.?\s*ft)\b`, 0.85, nil},
	{"decimal_feet", CategoryDimensions, `\b\d+\.\d+'`, 0.7, nil},
	{"on_center", CategoryDimensions, `(?i)\b\d+(?:\.\d+)?\s*(?:inches|inch|in\.?|")?\s*(?:o\.c\.|oc\b|on\s*center\b)`, 0.85, nil},
	{"elevation", CategoryDimensions, `(?i)\belevation[:\s]*\d+(?:\.\d+)?`, 0.8, nil},
	{"reference_elevation", CategoryDimensions, `\b(?:AFF|TOS|BOS|JBE)[:\s]*[+-]?\d+(?:\.\d+)?'?`, 0.8, nil},
	{"member_dimension", CategoryDimensions, `(?i)\b(?:height|width|length|depth|diameter|radius|clear\s*height|clear\s*span|span)[:\s]*\d+(?:\.\d+)?\s*(?:ft|feet|'|in|")`, 0.8, nil},

	// fire protection
	{"fire_rating", CategoryFireProtection, `(?i)\bfire\s*(?:rating|resistance|separation)[:\s]*\d+\s*(?:hour|hr)s?\b`, 0.9, nil},
	{"hour_rating", CategoryFireProtection, `(?i)\b\d+\s*(?:hour|hr)\s*(?:fire\s*)?(?:rating|resistance|rated)\b`, 0.9, nil},
	{"sprinkler", CategoryFireProtection, `(?i)\b(?:sprinklers?|sprinklered)\b`, 0.7, nil},
	{"nfpa", CategoryFireProtection, `\bNFPA\s*\d+\b`, 0.85, nil},
	{"fire_assembly", CategoryFireProtection, `(?i)\bfire\s*(?:doors?|walls?|barriers?|dampers?|alarms?|extinguishers?)\b`, 0.75, nil},
	{"smoke", CategoryFireProtection, `(?i)\bsmoke\s*(?:detectors?|detection)\b`, 0.75, nil},
	{"egress_lighting", CategoryFireProtection, `(?i)\b(?:exit\s*(?:signs?|lights?)|emergency\s*lights?)\b`, 0.65, nil},

	// title block and project information
	{"project", CategoryProjectInfo, `(?i)\bproject(?:\s*name)?:[ \t]*[^\n]+`, 0.8, nil},
	{"location", CategoryProjectInfo, `(?i)\b(?:location|address):[ \t]*[^\n]+`, 0.75, nil},
	{"date", CategoryProjectInfo, `(?i)\bdate:[ \t]*[^\n]+`, 0.7, nil},
	{"architect", CategoryProjectInfo, `(?i)\barchitect(?:\s*of\s*record)?:[ \t]*[^\n]+`, 0.75, nil},
	{"engineer", CategoryProjectInfo, `(?i)\b(?:structural\s*)?engineer(?:\s*of\s*record)?:[ \t]*[^\n]+`, 0.75, nil},
	{"owner", CategoryProjectInfo, `(?i)\bowner:[ \t]*[^\n]+`, 0.7, nil},
	{"sheet_number", CategoryProjectInfo, `(?i)\b(?:drawing|sheet)\s*(?:number|no\.?)[:\s]*[A-Z]*-?\d+(?:\.\d+)?\b`, 0.8, nil},
	{"sheet_of", CategoryProjectInfo, `(?i)\bsheet[:\s]*\d+\s*of\s*\d+\b`, 0.85, nil},
	{"scale", CategoryProjectInfo, `(?i)\bscale:[ \t]*[^\n]+`, 0.7, nil},
	{"job_number", CategoryProjectInfo, `(?i)\b(?:project|job)\s*(?:number|no\.?)[:\s]*[A-Z0-9][A-Z0-9-]*`, 0.85, nil},
	{"revision", CategoryProjectInfo, `(?i)\brevision[:\s]*[A-Z0-9]+\b`, 0.7, nil},

	// drawing abbreviations
	{"elevation_reference", CategoryAbbreviations, `\b(?:TOS|BOS|JBE|AFF|T/Steel|T/Parapet|B/Deck|T/Joist)\b`, 0.7, nil},
	{"elevation_reference_long", CategoryAbbreviations, `(?i)\b(?:top\s*of\s*(?:steel|parapet|joist)|bottom\s*of\s*(?:steel|deck)|joist\s*bearing\s*elevation|above\s*finished\s*floor)\b`, 0.7, nil},
	{"orientation", CategoryAbbreviations, `(?i)\b(?:LLV|LLH|long\s*leg\s*(?:vertical|horizontal))\b`, 0.7, nil},
	{"general", CategoryAbbreviations, `\b(?:HSS|CFMF|CMU|UNO|VIF|RTU|NTS|TYP)\b`, 0.65, nil},
	{"general_long", CategoryAbbreviations, `(?i)\b(?:hollow\s*structural\s*sections?|concrete\s*masonry\s*units?|unless\s*noted\s*otherwise|verify\s*in\s*field|roof\s*top\s*units?)\b`, 0.7, nil},
	{"drawing_reference", CategoryAbbreviations, `\b(?:SECTION|ELEVATION|PLAN|DETAIL|Section|Elevation|Plan|Detail)\s+(?:\d+|[A-Z]\d*)\b`, 0.6, nil},
}
