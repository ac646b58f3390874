package statemachine

// transitionGraph — статическое отображение ребёр диспетчерской
// таблицы, используемое только для диагностики (DescribeGraph).
// Реальная диспетчеризация выполняется каждым состоянием
// самостоятельно в HandleEvent; эта таблица существует отдельно,
// чтобы граф можно было напечатать при старте без прогона событий.
var transitionGraph = map[Name][]Name{
	FetchJobs:          {Monitor, SelectJob},
	Monitor:            {SelectJob},
	SelectJob:          {VerifyJob, FetchJobs},
	VerifyJob:          {Download, FetchJobs, VerifyInstallation},
	Download:           {Install, FetchJobs},
	Install:            {Restart, FetchJobs},
	Restart:            {FetchJobs},
	VerifyInstallation: {FetchJobs},
}

// AllStates конструирует все восемь состояний машины, готовые к
// передаче в New.
func AllStates() []State {
	return []State{
		NewFetchJobsState(),
		NewMonitorState(),
		NewSelectJobState(),
		NewVerifyJobState(),
		NewDownloadState(),
		NewInstallState(),
		NewRestartState(),
		NewVerifyInstallationState(),
	}
}
