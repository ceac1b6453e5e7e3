package lookup

type idResponse struct {
	OCID string `json:"ocid"`
}

type basicResponse struct {
	CharacterName  string `json:"character_name"`
	CharacterLevel *int   `json:"character_level"`
	CharacterClass string `json:"character_class"`
	CharacterImage string `json:"character_image"`
	WorldName      string `json:"world_name"`
}

type statResponse struct {
	FinalStat []struct {
		StatName  string `json:"stat_name"`
		StatValue string `json:"stat_value"`
	} `json:"final_stat"`
}

type errorResponse struct {
	Error struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}
